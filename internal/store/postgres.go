package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/db"
	"github.com/sells-group/intake-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection
// for the hot intake paths (reference resolution, duplicate check).
var preparedStatements = map[string]string{
	"find_reference_scoped":   `SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = $1 AND lower(name) = lower($2) AND parent_id = $3`,
	"find_reference_unscoped": `SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = $1 AND lower(name) = lower($2) AND parent_id IS NULL`,
	"insert_reference":        `INSERT INTO reference_entities (collection, name, parent_id) VALUES ($1, $2, $3) RETURNING id`,
	"find_contact_email":      `SELECT id FROM contacts WHERE lower(email) = lower($1)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reference_entities (
	id         BIGSERIAL PRIMARY KEY,
	collection TEXT NOT NULL,
	name       TEXT NOT NULL,
	parent_id  BIGINT REFERENCES reference_entities(id)
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
	organization_id      BIGINT REFERENCES reference_entities(id),
	organization_type_id BIGINT REFERENCES reference_entities(id),
	specialty_id         BIGINT REFERENCES reference_entities(id),
	occupation_id        BIGINT REFERENCES reference_entities(id),
	department_id        BIGINT REFERENCES reference_entities(id),
	country_id           BIGINT REFERENCES reference_entities(id),
	state_id             BIGINT REFERENCES reference_entities(id),
	city_id              BIGINT REFERENCES reference_entities(id),
	assistant_name       TEXT NOT NULL DEFAULT '',
	assistant_email      TEXT NOT NULL DEFAULT '',
	assistant_phone      TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'new',
	created_by           TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_email_unique
	ON contacts(lower(email)) WHERE email IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_contacts_created_at ON contacts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_contacts_status ON contacts(status);

CREATE TABLE IF NOT EXISTS investigator_profiles (
	contact_id           TEXT PRIMARY KEY REFERENCES contacts(id),
	principal_experience BOOLEAN NOT NULL DEFAULT false,
	principal_interest   BOOLEAN NOT NULL DEFAULT false,
	principal_notes      TEXT NOT NULL DEFAULT '',
	sub_experience       BOOLEAN NOT NULL DEFAULT false,
	sub_interest         BOOLEAN NOT NULL DEFAULT false,
	sub_notes            TEXT NOT NULL DEFAULT '',
	training_completed   BOOLEAN NOT NULL DEFAULT false,
	training_date        TIMESTAMPTZ,
	notes                TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sessions (
	token        TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	is_admin     BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListReferences(ctx context.Context, collection model.Collection) ([]model.ReferenceEntity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = $1 ORDER BY name`,
		string(collection),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", collection)
	}
	defer rows.Close()
	return scanReferences(rows, collection)
}

func (s *PostgresStore) ListReferencesByParent(ctx context.Context, collection model.Collection, parentID int64) ([]model.ReferenceEntity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = $1 AND parent_id = $2 ORDER BY name`,
		string(collection), parentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s by parent %d", collection, parentID)
	}
	defer rows.Close()
	return scanReferences(rows, collection)
}

func scanReferences(rows pgx.Rows, collection model.Collection) ([]model.ReferenceEntity, error) {
	var refs []model.ReferenceEntity
	for rows.Next() {
		var r model.ReferenceEntity
		if err := rows.Scan(&r.ID, &r.Collection, &r.Name, &r.ParentID); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s row", collection)
		}
		refs = append(refs, r)
	}
	return refs, eris.Wrapf(rows.Err(), "postgres: iterate %s", collection)
}

func (s *PostgresStore) FindReferenceByName(ctx context.Context, collection model.Collection, name string, parentID *int64) (*model.ReferenceEntity, error) {
	var (
		row pgx.Row
	)
	if parentID != nil {
		row = s.pool.QueryRow(ctx,
			`SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = $1 AND lower(name) = lower($2) AND parent_id = $3`,
			string(collection), name, *parentID,
		)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = $1 AND lower(name) = lower($2) AND parent_id IS NULL`,
			string(collection), name,
		)
	}

	var r model.ReferenceEntity
	if err := row.Scan(&r.ID, &r.Collection, &r.Name, &r.ParentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find %s %q", collection, name)
	}
	return &r, nil
}

func (s *PostgresStore) InsertReference(ctx context.Context, collection model.Collection, name string, parentID *int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reference_entities (collection, name, parent_id) VALUES ($1, $2, $3) RETURNING id`,
		string(collection), name, parentID,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert %s %q", collection, name)
	}
	return id, nil
}

func (s *PostgresStore) FindContactIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM contacts WHERE lower(email) = lower($1)`,
		email,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrap(err, "postgres: find contact by email")
	}
	return id, nil
}

func (s *PostgresStore) InsertContact(ctx context.Context, rec *model.ContactRecord) error {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (
			id, first_name, last_name, title, degree, email, phone, mobile, fax, address,
			organization_id, organization_type_id, specialty_id, occupation_id, department_id,
			country_id, state_id, city_id,
			assistant_name, assistant_email, assistant_phone,
			status, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		rec.ID, rec.FirstName, rec.LastName, rec.Title, rec.Degree, rec.Email,
		rec.Phone, rec.Mobile, rec.Fax, rec.Address,
		rec.OrganizationID, rec.OrganizationTypeID, rec.SpecialtyID, rec.OccupationID,
		rec.DepartmentID, rec.CountryID, rec.StateID, rec.CityID,
		rec.AssistantName, rec.AssistantEmail, rec.AssistantPhone,
		string(rec.Status), rec.CreatedBy, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert contact")
	}
	return nil
}

func (s *PostgresStore) InsertInvestigatorProfile(ctx context.Context, p *model.InvestigatorProfile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO investigator_profiles (
			contact_id, principal_experience, principal_interest, principal_notes,
			sub_experience, sub_interest, sub_notes,
			training_completed, training_date, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ContactID, p.PrincipalExperience, p.PrincipalInterest, p.PrincipalNotes,
		p.SubExperience, p.SubInterest, p.SubNotes,
		p.TrainingCompleted, p.TrainingDate, p.Notes,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert investigator profile for %s", p.ContactID)
	}
	return nil
}

// contactDetailSelect is shared by ListContacts and GetContactDetail.
// Reference foreign keys come back resolved to names for the listing
// and export surfaces.
const contactDetailSelect = `
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

func (s *PostgresStore) ListContacts(ctx context.Context, filter ContactFilter) ([]model.ContactDetail, error) {
	query := contactDetailSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND c.status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.CountryID != nil {
		query += fmt.Sprintf(` AND c.country_id = $%d`, argIdx)
		args = append(args, *filter.CountryID)
		argIdx++
	}
	if filter.InvestigatorsOnly {
		query += ` AND p.contact_id IS NOT NULL`
	}
	query += ` ORDER BY c.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var details []model.ContactDetail
	for rows.Next() {
		d, err := scanContactDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, *d)
	}
	return details, eris.Wrap(rows.Err(), "postgres: list contacts iterate")
}

func (s *PostgresStore) GetContactDetail(ctx context.Context, contactID string) (*model.ContactDetail, error) {
	rows, err := s.pool.Query(ctx, contactDetailSelect+` WHERE c.id = $1`, contactID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get contact %s", contactID)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrapf(err, "postgres: get contact %s", contactID)
		}
		return nil, nil
	}
	return scanContactDetail(rows)
}

// scanContactDetail scans one row of contactDetailSelect.
func scanContactDetail(rows pgx.Rows) (*model.ContactDetail, error) {
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
		return nil, eris.Wrap(err, "postgres: scan contact detail")
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

func derefBool(b *bool) bool {
	return b != nil && *b
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *PostgresStore) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT token, user_id, display_name, is_admin FROM sessions WHERE token = $1`,
		token,
	).Scan(&sess.Token, &sess.UserID, &sess.DisplayName, &sess.IsAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get session")
	}
	return &sess, nil
}

func (s *PostgresStore) IsAdminUser(ctx context.Context, userID string) (bool, error) {
	var isAdmin bool
	err := s.pool.QueryRow(ctx,
		`SELECT is_admin FROM sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID,
	).Scan(&isAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrapf(err, "postgres: is admin %s", userID)
	}
	return isAdmin, nil
}

// PutSession provisions a session token row. Exposed for seeding and
// tests; the identity provider owns this table in production.
func (s *PostgresStore) PutSession(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id, display_name, is_admin)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id,
		   display_name = EXCLUDED.display_name, is_admin = EXCLUDED.is_admin`,
		sess.Token, sess.UserID, sess.DisplayName, sess.IsAdmin,
	)
	return eris.Wrap(err, "postgres: put session")
}
