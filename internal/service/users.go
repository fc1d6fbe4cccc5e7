package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/glukogo/authsvc/internal/model"
	"github.com/glukogo/authsvc/internal/repository"
)

const maxNameLen = 64

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// GetUser returns the account with id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// FindUser accepts either an id or an email.
func (s *AuthService) FindUser(ctx context.Context, idOrEmail string) (*model.User, error) {
	if strings.Contains(idOrEmail, "@") {
		u, err := s.users.GetByEmail(ctx, normalizeEmail(idOrEmail))
		if err != nil {
			return nil, notFound(err)
		}
		return u, nil
	}
	return s.GetUser(ctx, idOrEmail)
}

// DeleteUser removes the account.  Issued tokens stay valid until expiry but
// stop resolving to an identity.
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	return notFound(s.users.Delete(ctx, id))
}

// UpdateName changes the display name.
func (s *AuthService) UpdateName(ctx context.Context, id, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return nil, ErrInvalidName
	}
	if err := s.users.UpdateName(ctx, id, name); err != nil {
		return nil, notFound(err)
	}
	return s.GetUser(ctx, id)
}

// ListUsers pages through all accounts ordered by id.
func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, limit, offset)
}

// SetRole changes an account's role.  It takes effect on the next request
// of that user since roles are never read from tokens.
func (s *AuthService) SetRole(ctx context.Context, id, role string) (*model.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, ErrInvalidRole
	}
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return nil, notFound(err)
	}
	return s.GetUser(ctx, id)
}
