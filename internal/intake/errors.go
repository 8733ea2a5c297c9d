package intake

import (
	"errors"
	"fmt"
)

// ErrSubmitInFlight is returned when Submit is called while a prior
// submission is still running. The caller should wait for the first
// result instead of retrying; running both would double-create the
// contact.
var ErrSubmitInFlight = errors.New("intake: submission already in flight")

// ValidationError reports required-field or format failures. It is
// recoverable locally and blocks only the final submit.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(e.Fields))
}

// UnavailableError reports that reference data could not be loaded.
// Callers degrade to empty option sets and notify; it never aborts the
// wizard.
type UnavailableError struct {
	Collection string
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("reference data unavailable: %s: %v", e.Collection, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// DuplicateEmailError reports that a contact with the same email
// already exists. Nothing was written.
type DuplicateEmailError struct {
	Email string
}

func (e *DuplicateEmailError) Error() string {
	return fmt.Sprintf("a contact with email %q already exists", e.Email)
}

// NotAuthenticatedError reports that no session was present at submit
// time. Nothing was written.
type NotAuthenticatedError struct{}

func (e *NotAuthenticatedError) Error() string {
	return "no active session"
}

// PersistenceError reports an insert failure for a reason other than
// uniqueness. Nothing was written for the failed entity.
type PersistenceError struct {
	Entity string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Entity, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ProfilePersistenceError reports a partial success: the contact row
// was committed but the investigator profile was not. It carries the
// created contact id so the caller does not retry the whole form,
// which would hit a duplicate-email conflict on the saved contact.
type ProfilePersistenceError struct {
	ContactID string
	Err       error
}

func (e *ProfilePersistenceError) Error() string {
	return fmt.Sprintf("contact %s saved but investigator profile failed: %v", e.ContactID, e.Err)
}

func (e *ProfilePersistenceError) Unwrap() error { return e.Err }
