// Package fixture loads and applies reference seed data: the shared
// collections (organization types, specialties, occupations,
// departments, geography) plus optional session rows for local
// development.
package fixture

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/store"
)

// Fixture is the seed file schema.
type Fixture struct {
	OrganizationTypes []string         `json:"organization_types"`
	Specialties       []string         `json:"specialties"`
	Occupations       []string         `json:"occupations"`
	Departments       []string         `json:"departments"`
	Countries         []CountryFixture `json:"countries"`
	Sessions          []SessionFixture `json:"sessions"`
}

// CountryFixture seeds a country with its state and city hierarchy.
type CountryFixture struct {
	Name   string         `json:"name"`
	States []StateFixture `json:"states,omitempty"`
}

// StateFixture seeds one state/region and its cities.
type StateFixture struct {
	Name   string   `json:"name"`
	Cities []string `json:"cities,omitempty"`
}

// SessionFixture provisions a development session row. A blank token
// gets a generated one.
type SessionFixture struct {
	Token       string `json:"token,omitempty"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Admin       bool   `json:"admin"`
}

// Resolver is the resolve-or-create dependency; seeding reuses the
// same idempotent path as intake, so re-running a seed file is safe.
type Resolver interface {
	Resolve(ctx context.Context, collection model.Collection, label string, parentID *int64) (*int64, error)
}

// LoadFile reads a JSON fixture from path.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "fixture: read seed file")
	}

	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "fixture: unmarshal seed file")
	}
	return &f, nil
}

// Apply resolves every fixture entry, creating the rows that do not
// exist yet, and provisions the session rows.
func (f *Fixture) Apply(ctx context.Context, st store.Store, resolver Resolver) error {
	flat := map[model.Collection][]string{
		model.CollectionOrganizationType: f.OrganizationTypes,
		model.CollectionSpecialty:        f.Specialties,
		model.CollectionOccupation:       f.Occupations,
		model.CollectionDepartment:       f.Departments,
	}
	for collection, names := range flat {
		for _, name := range names {
			if _, err := resolver.Resolve(ctx, collection, name, nil); err != nil {
				return eris.Wrapf(err, "fixture: seed %s %q", collection, name)
			}
		}
	}

	for _, country := range f.Countries {
		countryID, err := resolver.Resolve(ctx, model.CollectionCountry, country.Name, nil)
		if err != nil {
			return eris.Wrapf(err, "fixture: seed country %q", country.Name)
		}
		for _, state := range country.States {
			stateID, err := resolver.Resolve(ctx, model.CollectionStateRegion, state.Name, countryID)
			if err != nil {
				return eris.Wrapf(err, "fixture: seed state %q", state.Name)
			}
			for _, city := range state.Cities {
				if _, err := resolver.Resolve(ctx, model.CollectionCity, city, stateID); err != nil {
					return eris.Wrapf(err, "fixture: seed city %q", city)
				}
			}
		}
	}

	for _, sess := range f.Sessions {
		token := sess.Token
		if token == "" {
			token = uuid.New().String()
		}
		err := st.PutSession(ctx, store.Session{
			Token:       token,
			UserID:      sess.UserID,
			DisplayName: sess.DisplayName,
			IsAdmin:     sess.Admin,
		})
		if err != nil {
			return eris.Wrapf(err, "fixture: seed session for %s", sess.UserID)
		}
		zap.L().Info("session provisioned",
			zap.String("user_id", sess.UserID),
			zap.String("token", token),
			zap.Bool("admin", sess.Admin),
		)
	}

	return nil
}
