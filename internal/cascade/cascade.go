// Package cascade derives the dependent option sets of the intake
// form: country determines the valid states/regions, state determines
// the valid cities. The cascade is a continuously recomputed
// projection of the upstream inputs, never persisted.
package cascade

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/intake-cli/internal/intake"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/store"
)

// Loader holds the loaded option sets and recomputes the dependent
// ones whenever an upstream selection changes. Reads that were
// superseded by a newer selection are discarded rather than applied.
type Loader struct {
	store  store.Store
	notify func(error)

	mu         sync.Mutex
	closed     bool
	options    map[model.Collection][]model.ReferenceEntity
	states     []model.ReferenceEntity
	cities     []model.ReferenceEntity
	countryGen uint64
	stateGen   uint64
}

// New creates a Loader. notify receives non-fatal degradation
// errors (reference data unavailable); it may be nil.
func New(st store.Store, notify func(error)) *Loader {
	if notify == nil {
		notify = func(error) {}
	}
	return &Loader{
		store:   st,
		notify:  notify,
		options: make(map[model.Collection][]model.ReferenceEntity),
	}
}

// Preload fetches every independent option set concurrently. The
// wizard is usable before (and without) these resolving; a failed
// read degrades that collection to an empty set and notifies, it
// never aborts.
func (l *Loader) Preload(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	for _, collection := range model.IndependentCollections {
		g.Go(func() error {
			refs, err := l.store.ListReferences(gctx, collection)
			if err != nil {
				zap.L().Warn("cascade: option preload failed",
					zap.String("collection", string(collection)),
					zap.Error(err),
				)
				l.notify(&intake.UnavailableError{Collection: string(collection), Err: err})
				refs = nil
			}
			l.mu.Lock()
			if !l.closed {
				l.options[collection] = refs
			}
			l.mu.Unlock()
			return nil
		})
	}

	// Errors are absorbed per collection; Wait only orders completion.
	_ = g.Wait()
}

// Options returns the loaded option set for an independent collection.
func (l *Loader) Options(collection model.Collection) []model.ReferenceEntity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.options[collection]
}

// States returns the state/region options scoped to the current country.
func (l *Loader) States() []model.ReferenceEntity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states
}

// Cities returns the city options scoped to the current state.
func (l *Loader) Cities() []model.ReferenceEntity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cities
}

// SetCountry reacts to a changed country input. A blank or unmatched
// label empties the state options; either way the city options are
// cleared because their parent changed.
func (l *Loader) SetCountry(ctx context.Context, label string) {
	l.mu.Lock()
	l.countryGen++
	gen := l.countryGen
	l.stateGen++
	l.states = nil
	l.cities = nil
	countries := l.options[model.CollectionCountry]
	l.mu.Unlock()

	country := matchOption(countries, label)
	if country == nil {
		return
	}

	states, err := l.store.ListReferencesByParent(ctx, model.CollectionStateRegion, country.ID)
	if err != nil {
		zap.L().Warn("cascade: state load failed",
			zap.Int64("country_id", country.ID), zap.Error(err))
		l.notify(&intake.UnavailableError{Collection: string(model.CollectionStateRegion), Err: err})
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// A newer country selection supersedes this read; drop it.
	if l.closed || gen != l.countryGen {
		return
	}
	l.states = states
}

// SetState reacts to a changed state input, symmetrically to
// SetCountry.
func (l *Loader) SetState(ctx context.Context, label string) {
	l.mu.Lock()
	l.stateGen++
	gen := l.stateGen
	l.cities = nil
	states := l.states
	l.mu.Unlock()

	state := matchOption(states, label)
	if state == nil {
		return
	}

	cities, err := l.store.ListReferencesByParent(ctx, model.CollectionCity, state.ID)
	if err != nil {
		zap.L().Warn("cascade: city load failed",
			zap.Int64("state_id", state.ID), zap.Error(err))
		l.notify(&intake.UnavailableError{Collection: string(model.CollectionCity), Err: err})
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || gen != l.stateGen {
		return
	}
	l.cities = cities
}

// Close stops pending result application when the view is torn down.
// In-flight store reads finish on their own; their results are
// discarded.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.options = make(map[model.Collection][]model.ReferenceEntity)
	l.states = nil
	l.cities = nil
}

// matchOption finds the option whose name equals label
// case-insensitively, nil when label is blank or unmatched.
func matchOption(options []model.ReferenceEntity, label string) *model.ReferenceEntity {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil
	}
	for i := range options {
		if strings.EqualFold(options[i].Name, label) {
			return &options[i]
		}
	}
	return nil
}
