package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUniqueViolation marks an insert rejected by a uniqueness
// constraint. Stores wrap the driver error with it so callers can
// treat the violation as the authoritative signal of a lost race
// (duplicate email, concurrent reference creation) without knowing
// which backend produced it.
var ErrUniqueViolation = errors.New("unique violation")

// pgUniqueViolationCode is the SQLSTATE for unique_violation.
const pgUniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is, or wraps, a uniqueness
// constraint failure from either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUniqueViolation) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	// modernc.org/sqlite surfaces constraint failures as flat strings.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// ConstraintName extracts the violated constraint's name when the
// backend reports one, for mapping specific constraints to domain
// errors.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.TrimSpace(pgErr.ConstraintName)
	}
	return ""
}
