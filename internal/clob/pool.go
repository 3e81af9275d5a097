package clob

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

// Pool holds signed-but-unposted orders keyed by (token_id, side, price).
// A single whole-map lock is acceptable given the low contention the spec
// describes: the engine posts, the refresh task mutates.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*types.PreSignedOrder

	client *Client
	auth   *Auth
	params *ParamsCache

	staleThreshold  time.Duration
	refreshInterval time.Duration
	logger          *slog.Logger
}

// NewPool creates an empty pre-signed pool.
func NewPool(client *Client, auth *Auth, params *ParamsCache, staleThreshold, refreshInterval time.Duration, logger *slog.Logger) *Pool {
	return &Pool{
		entries:         make(map[string]*types.PreSignedOrder),
		client:          client,
		auth:            auth,
		params:          params,
		staleThreshold:  staleThreshold,
		refreshInterval: refreshInterval,
		logger:          logger.With("component", "presign_pool"),
	}
}

// Put signs req and stores it, keyed by (token_id, side, price).
func (p *Pool) Put(req types.OrderRequest, expirationSecs int64) (*types.PreSignedOrder, error) {
	params, err := p.params.Get(context.Background(), req.TokenID, false, time.Now())
	if err != nil {
		return nil, err
	}
	signed, err := Sign(p.auth, req, params, expirationSecs)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.entries[signed.Key] = signed
	p.mu.Unlock()
	return signed, nil
}

// Get returns the order at key if present, not expired, and not stale.
// Expired entries are removed as a side effect.
func (p *Pool) Get(tokenID string, side types.Side, price decimal.Decimal) (*types.PreSignedOrder, bool) {
	now := time.Now()
	key := poolKey(tokenID, side, price)

	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	if o.IsExpired(now) {
		delete(p.entries, key)
		return nil, false
	}
	if o.IsStale(now, p.staleThreshold) {
		return nil, false
	}
	return o, true
}

// Pop is like Get but removes the entry on a hit.
func (p *Pool) Pop(tokenID string, side types.Side, price decimal.Decimal) (*types.PreSignedOrder, bool) {
	now := time.Now()
	key := poolKey(tokenID, side, price)

	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	if o.IsExpired(now) {
		delete(p.entries, key)
		return nil, false
	}
	if o.IsStale(now, p.staleThreshold) {
		return nil, false
	}
	delete(p.entries, key)
	return o, true
}

// GetBest returns the highest-price BUY or lowest-price SELL among
// non-expired, non-stale entries for tokenID.
func (p *Pool) GetBest(tokenID string, side types.Side) (*types.PreSignedOrder, bool) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	var best *types.PreSignedOrder
	for key, o := range p.entries {
		if o.TokenID != tokenID || o.Side != side {
			continue
		}
		if o.IsExpired(now) {
			delete(p.entries, key)
			continue
		}
		if o.IsStale(now, p.staleThreshold) {
			continue
		}
		if best == nil {
			best = o
			continue
		}
		if side == types.BUY && o.Price.GreaterThan(best.Price) {
			best = o
		}
		if side == types.SELL && o.Price.LessThan(best.Price) {
			best = o
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Run sweeps expired entries and re-signs entries approaching their
// staleness threshold, every refreshInterval, until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshTick(ctx)
		}
	}
}

func (p *Pool) refreshTick(ctx context.Context) {
	now := time.Now()
	refreshWindow := p.staleThreshold + p.refreshInterval

	p.mu.Lock()
	var toRefresh []*types.PreSignedOrder
	for key, o := range p.entries {
		if o.IsExpired(now) {
			delete(p.entries, key)
			continue
		}
		tte := o.TimeUntilExpiry(now)
		if tte > 0 && tte < refreshWindow {
			toRefresh = append(toRefresh, o)
		}
	}
	p.mu.Unlock()

	for _, o := range toRefresh {
		params, err := p.params.Get(ctx, o.TokenID, true, now)
		if err != nil {
			p.logger.Error("refresh params fetch failed", "token_id", o.TokenID, "error", err)
			continue
		}
		expirationSecs := int64(0)
		if o.ExpirationTS != 0 {
			expirationSecs = int64(refreshWindow.Seconds())
		}
		fresh, err := Sign(p.auth, types.OrderRequest{
			TokenID:        o.TokenID,
			Side:           o.Side,
			Price:          o.Price,
			Size:           o.Size,
			ExpirationSecs: expirationSecs,
		}, params, expirationSecs)
		if err != nil {
			p.logger.Error("re-sign failed", "token_id", o.TokenID, "error", err)
			continue
		}
		p.mu.Lock()
		p.entries[fresh.Key] = fresh
		p.mu.Unlock()
	}
}
