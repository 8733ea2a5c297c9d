// Package lookup implements resolve-or-create reference resolution:
// find an existing reference row by case-insensitive name match, or
// create one if absent, returning its id either way.
package lookup

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/db"
	"github.com/sells-group/intake-cli/internal/intake"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/store"
)

// Resolver resolves free-text labels against reference collections.
// Resolution queries the store live rather than a cached option list,
// so a row created moments earlier is always reused.
type Resolver struct {
	store store.Store
}

// New creates a Resolver backed by the given store.
func New(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve returns the id of the reference row matching label within
// collection (scoped to parentID when non-nil), creating the row when
// no match exists. A blank or whitespace-only label resolves to nil
// with no row created. Calling Resolve repeatedly with equal labels
// (case-insensitively) returns the same id and creates at most one
// row.
func (r *Resolver) Resolve(ctx context.Context, collection model.Collection, label string, parentID *int64) (*int64, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}

	existing, err := r.store.FindReferenceByName(ctx, collection, label, parentID)
	if err != nil {
		return nil, &intake.PersistenceError{Entity: string(collection), Err: err}
	}
	if existing != nil {
		return &existing.ID, nil
	}

	id, err := r.store.InsertReference(ctx, collection, label, parentID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			// Another resolver won the race; the row now exists.
			return r.requery(ctx, collection, label, parentID)
		}
		return nil, &intake.PersistenceError{Entity: string(collection), Err: err}
	}

	zap.L().Debug("lookup: created reference",
		zap.String("collection", string(collection)),
		zap.String("name", label),
		zap.Int64("id", id),
	)
	return &id, nil
}

// requery fetches the row created by a concurrent resolver after our
// insert lost the uniqueness race.
func (r *Resolver) requery(ctx context.Context, collection model.Collection, label string, parentID *int64) (*int64, error) {
	existing, err := r.store.FindReferenceByName(ctx, collection, label, parentID)
	if err != nil {
		return nil, &intake.PersistenceError{Entity: string(collection), Err: err}
	}
	if existing == nil {
		return nil, &intake.PersistenceError{
			Entity: string(collection),
			Err:    eris.Errorf("lookup: %s %q vanished after unique violation", collection, label),
		}
	}
	return &existing.ID, nil
}
