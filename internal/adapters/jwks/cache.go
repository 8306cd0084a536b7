// Package jwks fetches and caches the tenant signing keys and verifies service Bearer tokens.
package jwks

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/target/portal-api/internal/observability/metrics"
)

// Defaults for CacheOptions.
const (
	DefaultFetchTimeout    = 5 * time.Second
	DefaultRefreshCooldown = 5 * time.Minute
)

// Cache holds the key set of a single JWKS URL. A lookup for a different URL
// replaces the cached set. There is no background refresh.
// Concurrency: methods are safe for concurrent use; concurrent fetches of the same URL are collapsed.
type Cache struct {
	mu        sync.RWMutex
	url       string
	set       jwk.Set
	fetchedAt time.Time

	group    singleflight.Group
	client   *http.Client
	timeout  time.Duration
	cooldown time.Duration
	metrics  *metrics.Recorder
	now      func() time.Time
}

// CacheOptions groups constructor options.
type CacheOptions struct {
	HTTPClient *http.Client
	// Timeout bounds every fetch.
	Timeout time.Duration
	// RefreshCooldown is the minimum age of a cached set before Refresh fetches again.
	RefreshCooldown time.Duration
	Metrics         *metrics.Recorder
	Now             func() time.Time
}

// NewCache creates an empty cache.
func NewCache(opts CacheOptions) *Cache {
	c := &Cache{
		client:   opts.HTTPClient,
		timeout:  opts.Timeout,
		cooldown: opts.RefreshCooldown,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = DefaultFetchTimeout
	}
	if c.cooldown <= 0 {
		c.cooldown = DefaultRefreshCooldown
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// KeySet returns the cached set for url, fetching it on first use or when url changed.
func (c *Cache) KeySet(ctx context.Context, url string) (jwk.Set, error) {
	if set, _, ok := c.cached(url); ok {
		c.metrics.RecordJWKSFetch(metrics.ResultHit)
		return set, nil
	}
	return c.fetch(ctx, url, false)
}

// Refresh refetches url unless the cached set is younger than the cooldown,
// in which case the cached set is returned unchanged.
func (c *Cache) Refresh(ctx context.Context, url string) (jwk.Set, error) {
	if set, fetchedAt, ok := c.cached(url); ok && c.now().Sub(fetchedAt) < c.cooldown {
		c.metrics.RecordJWKSFetch(metrics.ResultHit)
		return set, nil
	}
	return c.fetch(ctx, url, true)
}

func (c *Cache) cached(url string) (jwk.Set, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.set == nil || c.url != url {
		return nil, time.Time{}, false
	}
	return c.set, c.fetchedAt, true
}

// fetch runs one shared fetch per URL. The fetch is detached from any single caller's
// cancellation and bounded by the cache timeout; each caller stops waiting when its own
// context ends.
func (c *Cache) fetch(ctx context.Context, url string, force bool) (jwk.Set, error) {
	ch := c.group.DoChan(url, func() (any, error) {
		// Another caller may have completed a fetch while this one waited to enter DoChan.
		if set, fetchedAt, ok := c.cached(url); ok && (!force || c.now().Sub(fetchedAt) < c.cooldown) {
			return set, nil
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		set, err := jwk.Fetch(fctx, url, jwk.WithHTTPClient(c.client))
		if err != nil {
			c.metrics.RecordJWKSFetch(metrics.ResultError)
			return nil, fmt.Errorf("fetch jwks %s: %w", url, err)
		}
		c.metrics.RecordJWKSFetch(metrics.ResultSuccess)

		c.mu.Lock()
		c.url = url
		c.set = set
		c.fetchedAt = c.now()
		c.mu.Unlock()
		return set, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch jwks %s: %w", url, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(jwk.Set), nil
	}
}
