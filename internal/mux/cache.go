package mux

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
)

type cacheEntry struct {
	asset     *Asset
	fetchedAt time.Time
}

// assetCache is a short-TTL asset cache with request coalescing.
//
// Invalidation bumps a per-key generation and forgets the in-flight call, so a
// fetch that started before a mutation can neither populate the cache nor be
// joined by callers arriving after the mutation.
type assetCache struct {
	ttl   time.Duration
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
	gens    map[string]uint64

	group singleflight.Group
}

func newAssetCache(ttl time.Duration, clk clock.Clock) *assetCache {
	return &assetCache{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]cacheEntry),
		gens:    make(map[string]uint64),
	}
}

func (c *assetCache) get(id string) (*Asset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(entry.fetchedAt) >= c.ttl {
		delete(c.entries, id)
		return nil, false
	}
	return entry.asset, true
}

func (c *assetCache) generation(id string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id]
}

func (c *assetCache) storeIfCurrent(id string, asset *Asset, gen uint64, fetchedAt time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[id] != gen {
		return
	}
	c.entries[id] = cacheEntry{asset: asset, fetchedAt: fetchedAt}
}

// invalidate drops the cached value for id and detaches any in-flight fetch.
func (c *assetCache) invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.gens[id]++
	c.mu.Unlock()
	c.group.Forget(id)
}

// sharedFetchTimeout bounds a coalesced fetch, which no longer follows the
// cancellation of any single caller.
const sharedFetchTimeout = 30 * time.Second

// load returns the cached asset for id, joins an in-flight fetch for id, or
// runs fetch. Not-found results (nil asset) are not cached.
//
// The shared fetch runs on a context detached from the caller that started
// it, so one caller going away does not fail the others. Each caller still
// stops waiting when its own ctx is done.
func (c *assetCache) load(ctx context.Context, id string, fetch func(ctx context.Context) (*Asset, error)) (*Asset, error) {
	if asset, ok := c.get(id); ok {
		return asset, nil
	}

	gen := c.generation(id)
	ch := c.group.DoChan(id, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()

		asset, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if asset != nil {
			c.storeIfCurrent(id, asset, gen, c.clock.Now())
		}
		return asset, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		asset, _ := res.Val.(*Asset)
		return asset, nil
	}
}
