package clob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"polyarb/pkg/types"
)

// ParamsCache caches per-token MarketParams needed to sign an order. A
// global lock guards the per-token lock map; per-token locks serialize
// concurrent cache misses for the same token so only one fetch happens.
type ParamsCache struct {
	client *Client
	ttl    time.Duration

	mapMu  sync.Mutex
	locks  map[string]*sync.Mutex
	values map[string]types.MarketParams
}

// NewParamsCache creates a cache with the given staleness TTL.
func NewParamsCache(client *Client, ttl time.Duration) *ParamsCache {
	return &ParamsCache{
		client: client,
		ttl:    ttl,
		locks:  make(map[string]*sync.Mutex),
		values: make(map[string]types.MarketParams),
	}
}

func (c *ParamsCache) tokenLock(tokenID string) *sync.Mutex {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	l, ok := c.locks[tokenID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[tokenID] = l
	}
	return l
}

// Get returns cached params for tokenID, fetching (and caching) on a miss or
// when forceRefresh is set. now is injected so callers can test staleness.
func (c *ParamsCache) Get(ctx context.Context, tokenID string, forceRefresh bool, now time.Time) (types.MarketParams, error) {
	c.mapMu.Lock()
	p, ok := c.values[tokenID]
	c.mapMu.Unlock()
	if ok && !forceRefresh && !p.IsStale(now, c.ttl) {
		return p, nil
	}

	lock := c.tokenLock(tokenID)
	lock.Lock()
	defer lock.Unlock()

	c.mapMu.Lock()
	p, ok = c.values[tokenID]
	c.mapMu.Unlock()
	if ok && !forceRefresh && !p.IsStale(now, c.ttl) {
		return p, nil
	}

	fresh, err := c.client.MarketParamsFor(ctx, tokenID, now)
	if err != nil {
		return types.MarketParams{}, fmt.Errorf("params cache fetch %s: %w", tokenID, err)
	}

	c.mapMu.Lock()
	c.values[tokenID] = fresh
	c.mapMu.Unlock()

	return fresh, nil
}

// Warm parallelizes Get across tokens, used to pre-populate the cache during
// scanner idle time.
func (c *ParamsCache) Warm(ctx context.Context, tokenIDs []string, now time.Time) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, tokenID := range tokenIDs {
		tokenID := tokenID
		g.Go(func() error {
			_, err := c.Get(gctx, tokenID, false, now)
			return err
		})
	}
	return g.Wait()
}
