package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_FindReferenceByName_Unscoped(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, collection, name, parent_id FROM reference_entities WHERE collection = \$1 AND lower\(name\) = lower\(\$2\) AND parent_id IS NULL`).
		WithArgs("country", "Germany").
		WillReturnRows(pgxmock.NewRows([]string{"id", "collection", "name", "parent_id"}).
			AddRow(int64(7), "country", "Germany", nil))

	ref, err := s.FindReferenceByName(context.Background(), model.CollectionCountry, "Germany", nil)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, int64(7), ref.ID)
	assert.Equal(t, model.CollectionCountry, ref.Collection)
	assert.Nil(t, ref.ParentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindReferenceByName_Scoped(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	parent := int64(7)
	mock.ExpectQuery(`AND lower\(name\) = lower\(\$2\) AND parent_id = \$3`).
		WithArgs("state_region", "Bavaria", parent).
		WillReturnRows(pgxmock.NewRows([]string{"id", "collection", "name", "parent_id"}).
			AddRow(int64(12), "state_region", "Bavaria", &parent))

	ref, err := s.FindReferenceByName(context.Background(), model.CollectionStateRegion, "Bavaria", &parent)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, int64(12), ref.ID)
	require.NotNil(t, ref.ParentID)
	assert.Equal(t, parent, *ref.ParentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindReferenceByName_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM reference_entities`).
		WithArgs("country", "Atlantis").
		WillReturnError(pgx.ErrNoRows)

	ref, err := s.FindReferenceByName(context.Background(), model.CollectionCountry, "Atlantis", nil)
	require.NoError(t, err)
	assert.Nil(t, ref)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertReference_ReturnsID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO reference_entities .* RETURNING id`).
		WithArgs("specialty", "Cardiology", (*int64)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := s.InsertReference(context.Background(), model.CollectionSpecialty, "Cardiology", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListReferencesByParent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	parent := int64(7)
	mock.ExpectQuery(`WHERE collection = \$1 AND parent_id = \$2 ORDER BY name`).
		WithArgs("state_region", parent).
		WillReturnRows(pgxmock.NewRows([]string{"id", "collection", "name", "parent_id"}).
			AddRow(int64(12), "state_region", "Bavaria", &parent).
			AddRow(int64(13), "state_region", "Berlin", &parent))

	states, err := s.ListReferencesByParent(context.Background(), model.CollectionStateRegion, parent)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "Bavaria", states[0].Name)
	assert.Equal(t, "Berlin", states[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindContactIDByEmail_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM contacts WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("nobody@example.org").
		WillReturnError(pgx.ErrNoRows)

	id, err := s.FindContactIDByEmail(context.Background(), "nobody@example.org")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertContact_AssignsID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO contacts`).
		WithArgs(
			pgxmock.AnyArg(), "Jane", "Doe", "", "", pgxmock.AnyArg(),
			"", "", "", pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"", "", "",
			"new", "tester", pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := model.ContactRecord{
		FirstName: "Jane",
		LastName:  "Doe",
		Status:    model.RecordStatusNew,
		CreatedBy: "tester",
	}
	require.NoError(t, s.InsertContact(context.Background(), &rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSessionByToken_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM sessions WHERE token = \$1`).
		WithArgs("unknown-token").
		WillReturnError(pgx.ErrNoRows)

	sess, err := s.GetSessionByToken(context.Background(), "unknown-token")
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutSession_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("tok-1", "u-1", "Agent One", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutSession(context.Background(), Session{
		Token: "tok-1", UserID: "u-1", DisplayName: "Agent One", IsAdmin: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
