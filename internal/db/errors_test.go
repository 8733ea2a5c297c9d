package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrUniqueViolation, true},
		{"wrapped sentinel", fmt.Errorf("insert: %w", ErrUniqueViolation), true},
		{"pg unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "idx_contacts_email_unique"}, true},
		{"pg other error", &pgconn.PgError{Code: "23503"}, false},
		{"wrapped pg error", eris.Wrap(&pgconn.PgError{Code: "23505"}, "postgres: insert contact"), true},
		{"sqlite message", errors.New("constraint failed: UNIQUE constraint failed: reference_entities.name (2067)"), true},
		{"wrapped sqlite message", eris.Wrap(errors.New("UNIQUE constraint failed: contacts.email"), "sqlite: insert contact"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestConstraintName(t *testing.T) {
	err := eris.Wrap(&pgconn.PgError{Code: "23505", ConstraintName: "idx_contacts_email_unique"}, "insert")
	assert.Equal(t, "idx_contacts_email_unique", ConstraintName(err))

	assert.Empty(t, ConstraintName(errors.New("UNIQUE constraint failed: contacts.email")))
}
