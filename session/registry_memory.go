package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	sessionID string
	endpoint  string
	expiresAt time.Time
}

// MemoryRegistry keeps live sessions in process memory. Expiry is checked at
// read time; entries are additionally pruned whenever an account's list is
// touched.
type MemoryRegistry struct {
	mu      sync.Mutex
	tenants map[string]map[string][]*memoryEntry // tenant -> accountID -> sessions, oldest first
	nowFunc func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistryOption configures a MemoryRegistry.
type MemoryRegistryOption func(*MemoryRegistry)

// WithRegistryNowFunc overrides the clock, primarily for tests.
func WithRegistryNowFunc(now func() time.Time) MemoryRegistryOption {
	return func(r *MemoryRegistry) {
		r.nowFunc = now
	}
}

func NewMemoryRegistry(options ...MemoryRegistryOption) *MemoryRegistry {
	r := &MemoryRegistry{
		tenants: make(map[string]map[string][]*memoryEntry),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *MemoryRegistry) Save(_ context.Context, sess *Session, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accountSessions, ok := r.tenants[sess.TenantCode()]
	if !ok {
		accountSessions = make(map[string][]*memoryEntry)
		r.tenants[sess.TenantCode()] = accountSessions
	}

	live := r.prune(accountSessions[sess.AccountID()])

	if limit > 0 {
		onEndpoint := 0
		for _, e := range live {
			if e.endpoint == sess.Endpoint() {
				onEndpoint++
			}
		}
		// Evict the oldest session on this endpoint until under the limit.
		for i := 0; onEndpoint >= limit && i < len(live); {
			if live[i].endpoint == sess.Endpoint() {
				live = append(live[:i], live[i+1:]...)
				onEndpoint--
				continue
			}
			i++
		}
	}

	accountSessions[sess.AccountID()] = append(live, &memoryEntry{
		sessionID: sess.ID(),
		endpoint:  sess.Endpoint(),
		expiresAt: r.nowFunc().Add(sess.Timeout()),
	})
	return nil
}

func (r *MemoryRegistry) Verify(_ context.Context, sess *Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accountSessions, ok := r.tenants[sess.TenantCode()]
	if !ok {
		return false, nil
	}
	live := r.prune(accountSessions[sess.AccountID()])
	accountSessions[sess.AccountID()] = live

	entry := findEntry(live, sess.ID())
	if entry == nil {
		return false, nil
	}

	// A derived session dies with its source.
	if sess.Source() != "" && findEntry(live, sess.Source()) == nil {
		return false, nil
	}

	entry.expiresAt = r.nowFunc().Add(sess.Timeout())
	return true, nil
}

func (r *MemoryRegistry) Invalidate(_ context.Context, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accountSessions, ok := r.tenants[sess.TenantCode()]
	if !ok {
		return nil
	}
	live := accountSessions[sess.AccountID()]
	for i, e := range live {
		if e.sessionID == sess.ID() {
			accountSessions[sess.AccountID()] = append(live[:i], live[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryRegistry) Clear(_ context.Context, tenant, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if accountSessions, ok := r.tenants[tenant]; ok {
		delete(accountSessions, accountID)
	}
	return nil
}

func (r *MemoryRegistry) prune(entries []*memoryEntry) []*memoryEntry {
	now := r.nowFunc()
	live := entries[:0]
	for _, e := range entries {
		if e.expiresAt.After(now) {
			live = append(live, e)
		}
	}
	return live
}

func findEntry(entries []*memoryEntry, sessionID string) *memoryEntry {
	for _, e := range entries {
		if e.sessionID == sessionID {
			return e
		}
	}
	return nil
}
