// Package memstore is the in-process implementation of store.Ephemeral,
// used in development and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/centrid/go-identity-server/store"
)

const defaultSweepInterval = 5 * time.Second

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is a thread-safe in-memory ephemeral store. Expiry is enforced at
// read time; a background sweep reclaims memory for entries nobody reads.
type Store struct {
	mu      sync.Mutex
	tenants map[string]map[string]entry

	nowFunc func() time.Time
	done    chan struct{}
	once    sync.Once
}

var _ store.Ephemeral = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithNowFunc overrides the clock, primarily for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// New creates the store and starts its sweep goroutine. Close must be called
// to stop it.
func New(options ...Option) *Store {
	s := &Store{
		tenants: make(map[string]map[string]entry),
		nowFunc: time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	go s.sweep(defaultSweepInterval)
	return s
}

func (s *Store) Put(_ context.Context, tenant, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.tenants[tenant]
	if !ok {
		entries = make(map[string]entry)
		s.tenants[tenant] = entries
	}
	entries[key] = entry{value: value, expiresAt: s.nowFunc().Add(ttl)}
	return nil
}

func (s *Store) Get(_ context.Context, tenant, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tenants[tenant][key]
	if !ok || s.nowFunc().After(e.expiresAt) {
		return nil, store.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) GetAndRemove(_ context.Context, tenant, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tenants[tenant][key]
	if ok {
		delete(s.tenants[tenant], key)
	}
	if !ok || s.nowFunc().After(e.expiresAt) {
		return nil, store.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Delete(_ context.Context, tenant, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tenants[tenant], key)
	return nil
}

// Close stops the sweep goroutine. Safe to call more than once.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *Store) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for tenant, entries := range s.tenants {
		for key, e := range entries {
			if now.After(e.expiresAt) {
				delete(entries, key)
			}
		}
		if len(entries) == 0 {
			delete(s.tenants, tenant)
		}
	}
}
