package catalog

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultFailureTTL      = 30 * time.Second
)

const cacheKey = "catalog"

// CatalogLoader is satisfied by *Loader.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.Experiment, error)
}

type CacheOptions struct {
	// RefreshInterval bounds how long a loaded catalog is served before the
	// next call reloads it, independently of the snapshot freshness gate.
	RefreshInterval time.Duration
	// FailureTTL bounds how long a failed load is remembered.
	FailureTTL time.Duration
}

type cacheEntry struct {
	experiments []domain.Experiment
	err         error
}

// Cache keeps the most recent catalog in memory.
type Cache struct {
	loader     CatalogLoader
	items      *ttlcache.Cache[string, cacheEntry]
	group      singleflight.Group
	failureTTL time.Duration
}

func NewCache(loader CatalogLoader, opts CacheOptions) *Cache {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = DefaultFailureTTL
	}

	items := ttlcache.New(
		ttlcache.WithTTL[string, cacheEntry](opts.RefreshInterval),
		ttlcache.WithDisableTouchOnHit[string, cacheEntry](),
	)
	return &Cache{
		loader:     loader,
		items:      items,
		failureTTL: opts.FailureTTL,
	}
}

// Experiments returns the cached catalog, loading it when missing or
// expired. Concurrent misses share one load. A caller whose ctx ends first
// gets ctx.Err(); the shared load keeps running and fills the cache.
func (c *Cache) Experiments(ctx context.Context) ([]domain.Experiment, error) {
	if item := c.items.Get(cacheKey); item != nil {
		entry := item.Value()
		return entry.experiments, entry.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// One caller giving up must not poison the shared entry.
	loadCtx := context.WithoutCancel(ctx)

	loader := ttlcache.LoaderFunc[string, cacheEntry](
		func(cache *ttlcache.Cache[string, cacheEntry], key string) *ttlcache.Item[string, cacheEntry] {
			experiments, err := c.loader.LoadCatalog(loadCtx)
			ttl := ttlcache.DefaultTTL
			if err != nil {
				ttl = c.failureTTL
			}
			return cache.Set(key, cacheEntry{experiments: experiments, err: err}, ttl)
		},
	)

	done := make(chan *ttlcache.Item[string, cacheEntry], 1)
	go func() {
		done <- c.items.Get(cacheKey, ttlcache.WithLoader[string, cacheEntry](
			ttlcache.NewSuppressedLoader[string, cacheEntry](loader, &c.group),
		))
	}()

	var item *ttlcache.Item[string, cacheEntry]
	select {
	case item = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if item == nil {
		return nil, domain.ErrCatalogUnavailable
	}
	entry := item.Value()
	return entry.experiments, entry.err
}

// Invalidate drops the cached catalog so the next call reloads it.
func (c *Cache) Invalidate() {
	c.items.Delete(cacheKey)
}
