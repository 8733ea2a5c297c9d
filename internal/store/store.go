package store

import (
	"context"

	"github.com/sells-group/intake-cli/internal/model"
)

// ContactFilter specifies criteria for listing contacts.
type ContactFilter struct {
	Status            model.RecordStatus `json:"status,omitempty"`
	CountryID         *int64             `json:"country_id,omitempty"`
	InvestigatorsOnly bool               `json:"investigators_only,omitempty"`
	Limit             int                `json:"limit,omitempty"`
	Offset            int                `json:"offset,omitempty"`
}

// Session is a row of the session boundary table. Tokens are
// provisioned out of band by the identity provider; this system only
// reads them.
type Session struct {
	Token       string `json:"-"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
}

// Store defines the persistence interface for the intake system.
type Store interface {
	// References
	ListReferences(ctx context.Context, collection model.Collection) ([]model.ReferenceEntity, error)
	ListReferencesByParent(ctx context.Context, collection model.Collection, parentID int64) ([]model.ReferenceEntity, error)
	// FindReferenceByName matches case-insensitively within the
	// collection (and parent scope when parentID is non-nil). Returns
	// nil, nil when no row matches.
	FindReferenceByName(ctx context.Context, collection model.Collection, name string, parentID *int64) (*model.ReferenceEntity, error)
	InsertReference(ctx context.Context, collection model.Collection, name string, parentID *int64) (int64, error)

	// Contacts
	// FindContactIDByEmail matches case-insensitively; "" when absent.
	FindContactIDByEmail(ctx context.Context, email string) (string, error)
	// InsertContact assigns rec.ID and rec.CreatedAt and writes the row.
	InsertContact(ctx context.Context, rec *model.ContactRecord) error
	InsertInvestigatorProfile(ctx context.Context, profile *model.InvestigatorProfile) error
	ListContacts(ctx context.Context, filter ContactFilter) ([]model.ContactDetail, error)
	// GetContactDetail returns nil, nil when the contact does not exist.
	GetContactDetail(ctx context.Context, contactID string) (*model.ContactDetail, error)

	// Sessions. The identity provider owns this table; PutSession
	// exists for out-of-band provisioning (seed command, tests).
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	IsAdminUser(ctx context.Context, userID string) (bool, error)
	PutSession(ctx context.Context, sess Session) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
