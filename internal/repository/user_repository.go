package repository

import (
	"context"

	"github.com/glukogo/authsvc/internal/model"
)

// UserStore is the credential store.  Implementations enforce uniqueness of
// both id and email and report violations as ErrIDConflict / ErrEmailExists.
type UserStore interface {
	IDSource

	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByProvider finds a record linked to provider with providerID.
	GetByProvider(ctx context.Context, provider, providerID string) (*model.User, error)
	List(ctx context.Context, limit, offset int) ([]model.User, error)
	UpdateName(ctx context.Context, id, name string) error
	UpdateRole(ctx context.Context, id, role string) error
	// LinkProvider records providerID on an existing account.
	LinkProvider(ctx context.Context, id, provider, providerID string) error
	Delete(ctx context.Context, id string) error
}

// IDSource exposes the one query identifier assignment needs.
type IDSource interface {
	// MaxSequentialID returns the greatest 12-digit numeric id, or "" when
	// the store holds none.
	MaxSequentialID(ctx context.Context) (string, error)
}
