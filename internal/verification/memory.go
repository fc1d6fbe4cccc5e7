package verification

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryRegistry keeps codes in process memory.  Codes are lost on restart
// and are not shared between instances.  Expired entries are not swept; they
// simply never match again until overwritten.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	newCode func() (string, error)
}

// NewMemoryRegistry returns an empty registry.  A non-positive ttl selects
// DefaultTTL.
func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryRegistry{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		newCode: NewCode,
	}
}

// WithClock replaces the time source.
func (r *MemoryRegistry) WithClock(now func() time.Time) *MemoryRegistry {
	r.now = now
	return r
}

func (r *MemoryRegistry) Issue(_ context.Context, email string) (string, error) {
	code, err := r.newCode()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.entries[normalizeEmail(email)] = entry{code: code, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return code, nil
}

// Put stores code for email as if it had just been issued.
func (r *MemoryRegistry) Put(email, code string) {
	r.mu.Lock()
	r.entries[normalizeEmail(email)] = entry{code: code, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *MemoryRegistry) Verify(_ context.Context, email, code string) (bool, error) {
	key := normalizeEmail(email)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || code == "" || e.code != code || !r.now().Before(e.expiresAt) {
		return false, nil
	}
	delete(r.entries, key)
	return true, nil
}
