// Package cache is the read-through layer in front of the record store:
// an in-process L1 (go-cache) and an optional shared L2 (Redis).
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"scaler-service/models"
)

// Remote is the shared tier, keyed by the bare short code.
// *db.RedisDB satisfies it.
type Remote interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Options struct {
	// LocalTTL caps how long an entry lives in the L1
	LocalTTL time.Duration
	// Timeout bounds every remote call
	Timeout time.Duration
}

type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	RemoteErrors int64 `json:"remote_errors"`
	LocalItems   int   `json:"local_items"`
}

// Cache never returns errors: a failing tier is a miss
type Cache struct {
	local  *gocache.Cache
	remote Remote
	opts   Options
	logger *slog.Logger

	hits         atomic.Int64
	misses       atomic.Int64
	remoteErrors atomic.Int64
}

// New builds the cache. remote may be nil for a single-instance deployment.
func New(remote Remote, opts Options, logger *slog.Logger) *Cache {
	if opts.LocalTTL <= 0 {
		opts.LocalTTL = 5 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 250 * time.Millisecond
	}
	return &Cache{
		local:  gocache.New(opts.LocalTTL, 2*opts.LocalTTL),
		remote: remote,
		opts:   opts,
		logger: logger,
	}
}

// Get returns the original URL for code, back-filling the L1 on a remote hit
func (c *Cache) Get(ctx context.Context, code string) (string, bool) {
	if v, ok := c.local.Get(code); ok {
		c.hits.Add(1)
		return v.(string), true
	}

	if c.remote == nil {
		c.misses.Add(1)
		return "", false
	}

	rctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	url, found, err := c.remote.Get(rctx, code)
	if err != nil {
		c.remoteErrors.Add(1)
		c.misses.Add(1)
		c.logger.WarnContext(ctx, "cache get failed, falling back to store", "short_code", code, "error", err)
		return "", false
	}
	if !found {
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	c.local.Set(code, url, c.opts.LocalTTL)
	return url, true
}

// Set writes both tiers. The L1 keeps the entry for min(ttl, LocalTTL).
func (c *Cache) Set(ctx context.Context, code, url string, ttl time.Duration) {
	localTTL := c.opts.LocalTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	c.local.Set(code, url, localTTL)

	if c.remote == nil {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := c.remote.Set(rctx, code, url, ttl); err != nil {
		c.remoteErrors.Add(1)
		c.logger.WarnContext(ctx, "cache set failed", "short_code", code, "error", err)
	}
}

// Warm fills the L1 only, e.g. with the most recent links at startup
func (c *Cache) Warm(links []*models.ShortLink) int {
	n := 0
	for _, link := range links {
		if link == nil || link.ShortCode == "" {
			continue
		}
		c.local.Set(link.ShortCode, link.OriginalURL, c.opts.LocalTTL)
		n++
	}
	return n
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		RemoteErrors: c.remoteErrors.Load(),
		LocalItems:   c.local.ItemCount(),
	}
}
