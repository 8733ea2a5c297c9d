package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/intake-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs
// local/dev deployments and the integration-style tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reference_entities (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	name       TEXT NOT NULL,
	parent_id  INTEGER REFERENCES reference_entities(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reference_name_unique
	ON reference_entities(collection, lower(name), COALESCE(parent_id, 0));
CREATE INDEX IF NOT EXISTS idx_reference_parent
	ON reference_entities(collection, parent_id);

CREATE TABLE IF NOT EXISTS contacts (
	id                   TEXT PRIMARY KEY,
	first_name           TEXT NOT NULL,
	last_name            TEXT NOT NULL,
	title                TEXT NOT NULL DEFAULT '',
	degree               TEXT NOT NULL DEFAULT '',
	email                TEXT,
	phone                TEXT NOT NULL DEFAULT '',
	mobile               TEXT NOT NULL DEFAULT '',
	fax                  TEXT NOT NULL DEFAULT '',
	address              TEXT,
	organization_id      INTEGER REFERENCES reference_entities(id),
	organization_type_id INTEGER REFERENCES reference_entities(id),
	specialty_id         INTEGER REFERENCES reference_entities(id),
	occupation_id        INTEGER REFERENCES reference_entities(id),
	department_id        INTEGER REFERENCES reference_entities(id),
	country_id           INTEGER REFERENCES reference_entities(id),
	state_id             INTEGER REFERENCES reference_entities(id),
	city_id              INTEGER REFERENCES reference_entities(id),
	assistant_name       TEXT NOT NULL DEFAULT '',
	assistant_email      TEXT NOT NULL DEFAULT '',
	assistant_phone      TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'new',
	created_by           TEXT NOT NULL,
	created_at           DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_email_unique
	ON contacts(lower(email)) WHERE email IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_contacts_created_at ON contacts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_contacts_status ON contacts(status);

CREATE TABLE IF NOT EXISTS investigator_profiles (
	contact_id           TEXT PRIMARY KEY REFERENCES contacts(id),
	principal_experience INTEGER NOT NULL DEFAULT 0,
	principal_interest   INTEGER NOT NULL DEFAULT 0,
	principal_notes      TEXT NOT NULL DEFAULT '',
	sub_experience       INTEGER NOT NULL DEFAULT 0,
	sub_interest         INTEGER NOT NULL DEFAULT 0,
	sub_notes            TEXT NOT NULL DEFAULT '',
	training_completed   INTEGER NOT NULL DEFAULT 0,
	training_date        DATETIME,
	notes                TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sessions (
	token        TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	is_admin     INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for seeding and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) ListReferences(ctx context.Context, collection model.Collection) ([]model.ReferenceEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = ? ORDER BY name`,
		string(collection),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", collection)
	}
	defer rows.Close()
	return scanReferenceRows(rows, collection)
}

func (s *SQLiteStore) ListReferencesByParent(ctx context.Context, collection model.Collection, parentID int64) ([]model.ReferenceEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = ? AND parent_id = ? ORDER BY name`,
		string(collection), parentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s by parent %d", collection, parentID)
	}
	defer rows.Close()
	return scanReferenceRows(rows, collection)
}

func scanReferenceRows(rows *sql.Rows, collection model.Collection) ([]model.ReferenceEntity, error) {
	var refs []model.ReferenceEntity
	for rows.Next() {
		var r model.ReferenceEntity
		if err := rows.Scan(&r.ID, &r.Collection, &r.Name, &r.ParentID); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s row", collection)
		}
		refs = append(refs, r)
	}
	return refs, eris.Wrapf(rows.Err(), "sqlite: iterate %s", collection)
}

func (s *SQLiteStore) FindReferenceByName(ctx context.Context, collection model.Collection, name string, parentID *int64) (*model.ReferenceEntity, error) {
	var row *sql.Row
	if parentID != nil {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = ? AND lower(name) = lower(?) AND parent_id = ?`,
			string(collection), name, *parentID,
		)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = ? AND lower(name) = lower(?) AND parent_id IS NULL`,
			string(collection), name,
		)
	}

	var r model.ReferenceEntity
	if err := row.Scan(&r.ID, &r.Collection, &r.Name, &r.ParentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: find %s %q", collection, name)
	}
	return &r, nil
}

func (s *SQLiteStore) InsertReference(ctx context.Context, collection model.Collection, name string, parentID *int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reference_entities (collection, name, parent_id) VALUES (?, ?, ?)`,
		string(collection), name, parentID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert %s %q", collection, name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	return id, nil
}

func (s *SQLiteStore) FindContactIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM contacts WHERE lower(email) = lower(?)`,
		email,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrap(err, "sqlite: find contact by email")
	}
	return id, nil
}

func (s *SQLiteStore) InsertContact(ctx context.Context, rec *model.ContactRecord) error {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (
			id, first_name, last_name, title, degree, email, phone, mobile, fax, address,
			organization_id, organization_type_id, specialty_id, occupation_id, department_id,
			country_id, state_id, city_id,
			assistant_name, assistant_email, assistant_phone,
			status, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FirstName, rec.LastName, rec.Title, rec.Degree, rec.Email,
		rec.Phone, rec.Mobile, rec.Fax, rec.Address,
		rec.OrganizationID, rec.OrganizationTypeID, rec.SpecialtyID, rec.OccupationID,
		rec.DepartmentID, rec.CountryID, rec.StateID, rec.CityID,
		rec.AssistantName, rec.AssistantEmail, rec.AssistantPhone,
		string(rec.Status), rec.CreatedBy, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert contact")
	}
	return nil
}

func (s *SQLiteStore) InsertInvestigatorProfile(ctx context.Context, p *model.InvestigatorProfile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO investigator_profiles (
			contact_id, principal_experience, principal_interest, principal_notes,
			sub_experience, sub_interest, sub_notes,
			training_completed, training_date, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ContactID, p.PrincipalExperience, p.PrincipalInterest, p.PrincipalNotes,
		p.SubExperience, p.SubInterest, p.SubNotes,
		p.TrainingCompleted, p.TrainingDate, p.Notes,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert investigator profile for %s", p.ContactID)
	}
	return nil
}

const sqliteContactDetailSelect = `
SELECT c.id, c.first_name, c.last_name, c.title, c.degree, c.email,
       c.phone, c.mobile, c.fax, c.address,
       c.organization_id, c.organization_type_id, c.specialty_id, c.occupation_id,
       c.department_id, c.country_id, c.state_id, c.city_id,
       c.assistant_name, c.assistant_email, c.assistant_phone,
       c.status, c.created_by, c.created_at,
       COALESCE(org.name, ''), COALESCE(orgtype.name, ''), COALESCE(spec.name, ''),
       COALESCE(occ.name, ''), COALESCE(dept.name, ''), COALESCE(country.name, ''),
       COALESCE(state.name, ''), COALESCE(city.name, ''),
       COALESCE(creator.display_name, ''),
       p.contact_id, p.principal_experience, p.principal_interest, p.principal_notes,
       p.sub_experience, p.sub_interest, p.sub_notes,
       p.training_completed, p.training_date, p.notes
FROM contacts c
LEFT JOIN reference_entities org     ON org.id = c.organization_id
LEFT JOIN reference_entities orgtype ON orgtype.id = c.organization_type_id
LEFT JOIN reference_entities spec    ON spec.id = c.specialty_id
LEFT JOIN reference_entities occ     ON occ.id = c.occupation_id
LEFT JOIN reference_entities dept    ON dept.id = c.department_id
LEFT JOIN reference_entities country ON country.id = c.country_id
LEFT JOIN reference_entities state   ON state.id = c.state_id
LEFT JOIN reference_entities city    ON city.id = c.city_id
LEFT JOIN (
	SELECT user_id, MAX(display_name) AS display_name FROM sessions GROUP BY user_id
) creator ON creator.user_id = c.created_by
LEFT JOIN investigator_profiles p ON p.contact_id = c.id`

func (s *SQLiteStore) ListContacts(ctx context.Context, filter ContactFilter) ([]model.ContactDetail, error) {
	query := sqliteContactDetailSelect + ` WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND c.status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CountryID != nil {
		query += ` AND c.country_id = ?`
		args = append(args, *filter.CountryID)
	}
	if filter.InvestigatorsOnly {
		query += ` AND p.contact_id IS NOT NULL`
	}
	query += ` ORDER BY c.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer rows.Close()

	var details []model.ContactDetail
	for rows.Next() {
		d, err := scanSQLiteContactDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, *d)
	}
	return details, eris.Wrap(rows.Err(), "sqlite: list contacts iterate")
}

func (s *SQLiteStore) GetContactDetail(ctx context.Context, contactID string) (*model.ContactDetail, error) {
	rows, err := s.db.QueryContext(ctx, sqliteContactDetailSelect+` WHERE c.id = ?`, contactID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contact %s", contactID)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrapf(err, "sqlite: get contact %s", contactID)
		}
		return nil, nil
	}
	return scanSQLiteContactDetail(rows)
}

func scanSQLiteContactDetail(rows *sql.Rows) (*model.ContactDetail, error) {
	var d model.ContactDetail
	c := &d.Contact

	var (
		profileID    *string
		pExp, pInt   *bool
		pNotes       *string
		sExp, sInt   *bool
		sNotes       *string
		trained      *bool
		trainingDate *time.Time
		notes        *string
	)

	err := rows.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Title, &c.Degree, &c.Email,
		&c.Phone, &c.Mobile, &c.Fax, &c.Address,
		&c.OrganizationID, &c.OrganizationTypeID, &c.SpecialtyID, &c.OccupationID,
		&c.DepartmentID, &c.CountryID, &c.StateID, &c.CityID,
		&c.AssistantName, &c.AssistantEmail, &c.AssistantPhone,
		&c.Status, &c.CreatedBy, &c.CreatedAt,
		&d.OrganizationName, &d.OrganizationTypeName, &d.SpecialtyName,
		&d.OccupationName, &d.DepartmentName, &d.CountryName,
		&d.StateName, &d.CityName,
		&d.CreatorName,
		&profileID, &pExp, &pInt, &pNotes,
		&sExp, &sInt, &sNotes,
		&trained, &trainingDate, &notes,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan contact detail")
	}

	if profileID != nil {
		d.Profile = &model.InvestigatorProfile{
			ContactID:           *profileID,
			PrincipalExperience: derefBool(pExp),
			PrincipalInterest:   derefBool(pInt),
			PrincipalNotes:      derefStr(pNotes),
			SubExperience:       derefBool(sExp),
			SubInterest:         derefBool(sInt),
			SubNotes:            derefStr(sNotes),
			TrainingCompleted:   derefBool(trained),
			TrainingDate:        trainingDate,
			Notes:               derefStr(notes),
		}
	}
	return &d, nil
}

func (s *SQLiteStore) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, display_name, is_admin FROM sessions WHERE token = ?`,
		token,
	).Scan(&sess.Token, &sess.UserID, &sess.DisplayName, &sess.IsAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get session")
	}
	return &sess, nil
}

func (s *SQLiteStore) IsAdminUser(ctx context.Context, userID string) (bool, error) {
	var isAdmin bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_admin FROM sessions WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`,
		userID,
	).Scan(&isAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrapf(err, "sqlite: is admin %s", userID)
	}
	return isAdmin, nil
}

// PutSession provisions a session token row. Exposed for seeding and
// tests; the identity provider owns this table in production.
func (s *SQLiteStore) PutSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, display_name, is_admin, created_at)
		 VALUES (?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (token) DO UPDATE SET user_id = excluded.user_id,
		   display_name = excluded.display_name, is_admin = excluded.is_admin`,
		sess.Token, sess.UserID, sess.DisplayName, sess.IsAdmin,
	)
	return eris.Wrap(err, "sqlite: put session")
}
