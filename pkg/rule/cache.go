package rule

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/metrics"
)

// DefaultCacheTTL bounds catalog staleness platform-wide.
const DefaultCacheTTL = 60 * time.Second

// fetchFunc loads the active rule set from the catalog.
type fetchFunc func(ctx context.Context) ([]*Rule, error)

// Cache is a bounded-staleness mirror of the active rule catalog, refreshed
// at most once per TTL window unless a mutation invalidates it. A failed
// refresh serves the last known-good snapshot: the hot evaluation path
// never errors because the catalog was briefly unreachable.
type Cache struct {
	fetch fetchFunc
	ttl   time.Duration

	mu        sync.Mutex
	snapshot  []*Rule
	fetchedAt time.Time
	valid     bool
	hasData   bool
}

// NewCache creates a cache over the given fetch source. A non-positive ttl
// falls back to DefaultCacheTTL.
func NewCache(fetch fetchFunc, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{fetch: fetch, ttl: ttl}
}

// ActiveRules returns the cached active rules in precedence order. The
// returned slice is shared; callers must not mutate it.
func (c *Cache) ActiveRules(ctx context.Context) ([]*Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && time.Since(c.fetchedAt) < c.ttl {
		return c.snapshot, nil
	}

	rules, err := c.fetch(ctx)
	if err != nil {
		if c.hasData {
			metrics.CatalogRefreshesTotal.WithLabelValues("stale").Inc()
			logrus.Warnf("rule cache refresh failed, serving last known snapshot of %d rules: %v",
				len(c.snapshot), err)
			return c.snapshot, nil
		}
		metrics.CatalogRefreshesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.CatalogRefreshesTotal.WithLabelValues("ok").Inc()

	c.snapshot = rules
	c.fetchedAt = time.Now()
	c.valid = true
	c.hasData = true
	logrus.Debugf("rule cache refreshed: %d active rules", len(rules))
	return c.snapshot, nil
}

// Invalidate marks the snapshot stale; the next read fetches synchronously.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
	logrus.Debugf("rule cache invalidated")
}
