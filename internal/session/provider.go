// Package session defines the boundary to the external identity
// provider. Credential issuance and verification live elsewhere; this
// package only resolves an already-issued token to a user and answers
// role questions.
package session

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/store"
)

// Session identifies the authenticated user behind a request.
type Session struct {
	UserID      string
	DisplayName string
	Admin       bool
}

// Provider is the identity collaborator consumed by the orchestrator
// and the listing surface. CurrentSession returns nil (not an error)
// when no session is present.
type Provider interface {
	CurrentSession(ctx context.Context) (*Session, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type tokenKey struct{}

// WithToken attaches a bearer token to the context for StoreProvider
// to resolve.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext extracts the bearer token, if any.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// StoreProvider resolves sessions against the store's session table.
type StoreProvider struct {
	store store.Store
}

// NewStoreProvider creates a Provider backed by the session table.
func NewStoreProvider(st store.Store) *StoreProvider {
	return &StoreProvider{store: st}
}

func (p *StoreProvider) CurrentSession(ctx context.Context) (*Session, error) {
	token := TokenFromContext(ctx)
	if token == "" {
		return nil, nil
	}
	row, err := p.store.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, eris.Wrap(err, "session: resolve token")
	}
	if row == nil {
		return nil, nil
	}
	return &Session{UserID: row.UserID, DisplayName: row.DisplayName, Admin: row.IsAdmin}, nil
}

func (p *StoreProvider) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return p.store.IsAdminUser(ctx, userID)
}

// StaticProvider always reports the same session. Used by CLI
// commands and tests.
type StaticProvider struct {
	Session *Session
}

func (p *StaticProvider) CurrentSession(ctx context.Context) (*Session, error) {
	return p.Session, nil
}

func (p *StaticProvider) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return p.Session != nil && p.Session.UserID == userID && p.Session.Admin, nil
}
