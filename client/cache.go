package client

import (
	"sync"
	"time"
)

const (
	// DefaultPositiveTTL bounds how long a confirmed-live session id is
	// trusted without re-asking the authority.
	DefaultPositiveTTL = 5 * time.Second

	// DefaultNegativeTTL bounds how long a confirmed-dead session id keeps
	// being rejected locally.
	DefaultNegativeTTL = 30 * time.Minute

	sweepInterval = 5 * time.Second
)

// tenantCache holds the positive and negative session-id sets for one
// tenant. A session id is never in both sets; recording a result removes it
// from the opposite set first.
type tenantCache struct {
	mu       sync.RWMutex
	positive map[string]time.Time
	negative map[string]time.Time

	positiveTTL time.Duration
	negativeTTL time.Duration
	nowFunc     func() time.Time
}

func newTenantCache(positiveTTL, negativeTTL time.Duration, nowFunc func() time.Time) *tenantCache {
	return &tenantCache{
		positive:    make(map[string]time.Time),
		negative:    make(map[string]time.Time),
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
		nowFunc:     nowFunc,
	}
}

// lookup reports the cached verdict for a session id: (true, true) live,
// (false, true) dead, (_, false) unknown.
func (c *tenantCache) lookup(sessionID string) (live, known bool) {
	now := c.nowFunc()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if expiry, ok := c.positive[sessionID]; ok && now.Before(expiry) {
		return true, true
	}
	if expiry, ok := c.negative[sessionID]; ok && now.Before(expiry) {
		return false, true
	}
	return false, false
}

func (c *tenantCache) record(sessionID string, live bool) {
	now := c.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	if live {
		delete(c.negative, sessionID)
		c.positive[sessionID] = now.Add(c.positiveTTL)
	} else {
		delete(c.positive, sessionID)
		c.negative[sessionID] = now.Add(c.negativeTTL)
	}
}

func (c *tenantCache) sweep() {
	now := c.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, expiry := range c.positive {
		if !now.Before(expiry) {
			delete(c.positive, id)
		}
	}
	for id, expiry := range c.negative {
		if !now.Before(expiry) {
			delete(c.negative, id)
		}
	}
}

// Cache is the per-tenant verdict cache. Tenant caches are created lazily
// and swept together on a single timer.
type Cache struct {
	mu      sync.Mutex
	tenants map[string]*tenantCache

	positiveTTL time.Duration
	negativeTTL time.Duration
	nowFunc     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithPositiveTTL overrides the positive verdict lifetime.
func WithPositiveTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.positiveTTL = ttl
	}
}

// WithNegativeTTL overrides the negative verdict lifetime.
func WithNegativeTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.negativeTTL = ttl
	}
}

// WithCacheNowFunc overrides the clock, primarily for tests.
func WithCacheNowFunc(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

// NewCache starts the background sweeper. Call Close to stop it.
func NewCache(options ...CacheOption) *Cache {
	c := &Cache{
		tenants:     make(map[string]*tenantCache),
		positiveTTL: DefaultPositiveTTL,
		negativeTTL: DefaultNegativeTTL,
		nowFunc:     time.Now,
		done:        make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	go c.sweepLoop()
	return c
}

func (c *Cache) forTenant(tenant string) *tenantCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	tc, ok := c.tenants[tenant]
	if !ok {
		tc = newTenantCache(c.positiveTTL, c.negativeTTL, c.nowFunc)
		c.tenants[tenant] = tc
	}
	return tc
}

// Lookup reports the cached verdict for a tenant's session id.
func (c *Cache) Lookup(tenant, sessionID string) (live, known bool) {
	return c.forTenant(tenant).lookup(sessionID)
}

// Record stores an authority verdict for a tenant's session id.
func (c *Cache) Record(tenant, sessionID string, live bool) {
	c.forTenant(tenant).record(sessionID, live)
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			tenants := make([]*tenantCache, 0, len(c.tenants))
			for _, tc := range c.tenants {
				tenants = append(tenants, tc)
			}
			c.mu.Unlock()
			for _, tc := range tenants {
				tc.sweep()
			}
		case <-c.done:
			return
		}
	}
}
