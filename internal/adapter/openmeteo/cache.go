package openmeteo

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/observability"
	"github.com/couchcryptid/raintree-service/internal/tree"
)

// CachedForecaster wraps a Forecaster with an in-memory LRU cache whose
// entries expire after a TTL. Concurrent misses for the same day share one
// upstream request.
type CachedForecaster struct {
	inner   domain.Forecaster
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCachedForecaster creates a cache decorator around a forecaster.
func NewCachedForecaster(inner domain.Forecaster, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedForecaster {
	return &CachedForecaster{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
	}
}

func (c *CachedForecaster) Forecast(ctx context.Context, date time.Time) (tree.FeatureVector, error) {
	key := domain.FormatDate(date)
	now := c.clock.Now()
	if fv, ok := c.cache.get(key, now); ok {
		c.metrics.ForecastCache.WithLabelValues("hit").Inc()
		return maps.Clone(fv), nil
	}
	c.metrics.ForecastCache.WithLabelValues("miss").Inc()

	// The shared fetch outlives any single caller's cancellation; the
	// client timeout still bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		fv, err := c.inner.Forecast(fetchCtx, date)
		if err != nil {
			return nil, err
		}
		// Errors are not cached so an unavailable day can be retried once
		// the forecast window moves.
		c.cache.put(key, fv, c.clock.Now().Add(c.ttl))
		return fv, nil
	})

	select {
	case <-ctx.Done():
		return nil, &domain.FetchError{Date: key, Reason: "request abandoned", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return maps.Clone(res.Val.(tree.FeatureVector)), nil
	}
}

// lruCache is a simple thread-safe LRU cache of feature vectors with
// per-entry expiry.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     tree.FeatureVector
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string, now time.Time) (tree.FeatureVector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value tree.FeatureVector, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
