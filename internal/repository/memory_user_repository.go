package repository // in-process driver of the user store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/glukogo/authsvc/internal/model"
)

// MemoryUserRepo is an in-process UserStore used by STORE_DRIVER=memory and
// by tests.  It enforces the same unique constraints as the real drivers.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[string]model.User // keyed by id
	order []string              // insertion order for List
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: map[string]model.User{}}
}

func (r *MemoryUserRepo) MaxSequentialID(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	maxID := ""
	for id := range r.users {
		if IsSequentialID(id) && id > maxID {
			maxID = id
		}
	}
	return maxID, nil
}

func (r *MemoryUserRepo) Create(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return ErrIDConflict
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return ErrEmailExists
		}
	}
	r.users[u.ID] = clone(*u)
	r.order = append(r.order, u.ID)
	return nil
}

func (r *MemoryUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(u)
	return &c, nil
}

func (r *MemoryUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.find(func(u model.User) bool { return u.Email == email })
}

func (r *MemoryUserRepo) GetByProvider(ctx context.Context, provider, providerID string) (*model.User, error) {
	if providerID == "" {
		return nil, ErrNotFound
	}
	return r.find(func(u model.User) bool { return u.ProviderID(provider) == providerID })
}

func (r *MemoryUserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []model.User{}
	for i, id := range r.order {
		if i < offset {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, clone(r.users[id]))
	}
	return out, nil
}

func (r *MemoryUserRepo) UpdateName(ctx context.Context, id, name string) error {
	return r.update(id, func(u *model.User) { u.Name = name })
}

func (r *MemoryUserRepo) UpdateRole(ctx context.Context, id, role string) error {
	return r.update(id, func(u *model.User) { u.Role = role })
}

func (r *MemoryUserRepo) LinkProvider(ctx context.Context, id, provider, providerID string) error {
	if provider != model.ProviderVK && provider != model.ProviderYandex {
		return ErrNotFound
	}
	return r.update(id, func(u *model.User) { u.SetProviderID(provider, providerID) })
}

func (r *MemoryUserRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}

// Len returns the number of stored records.
func (r *MemoryUserRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *MemoryUserRepo) find(match func(model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if u := r.users[id]; match(u) {
			c := clone(u)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepo) update(id string, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	r.users[id] = u
	return nil
}

func clone(u model.User) model.User {
	u.Rewards = slices.Clone(u.Rewards)
	return u
}
