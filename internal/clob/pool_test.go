package clob

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

func newTestPool() *Pool {
	return NewPool(nil, nil, nil, 2*time.Second, time.Second, testLogger())
}

func seedEntry(p *Pool, tokenID string, side types.Side, price decimal.Decimal, age time.Duration, expirationTS int64) {
	o := &types.PreSignedOrder{
		Key:          poolKey(tokenID, side, price),
		TokenID:      tokenID,
		Side:         side,
		Price:        price,
		Size:         decimal.RequireFromString("10"),
		CreatedAt:    time.Now().Add(-age),
		ExpirationTS: expirationTS,
	}
	p.mu.Lock()
	p.entries[o.Key] = o
	p.mu.Unlock()
}

func TestPoolGetReturnsFreshEntry(t *testing.T) {
	t.Parallel()
	p := newTestPool()
	price := decimal.RequireFromString("0.55")
	seedEntry(p, "tok-1", types.BUY, price, 0, 0)

	o, ok := p.Get("tok-1", types.BUY, price)
	if !ok {
		t.Fatalf("expected hit")
	}
	if o.TokenID != "tok-1" {
		t.Errorf("unexpected token id %s", o.TokenID)
	}

	// Get must not remove a fresh entry.
	if _, ok := p.Get("tok-1", types.BUY, price); !ok {
		t.Fatalf("expected second Get to still hit")
	}
}

func TestPoolGetRemovesExpiredEntry(t *testing.T) {
	t.Parallel()
	p := newTestPool()
	price := decimal.RequireFromString("0.55")
	seedEntry(p, "tok-1", types.BUY, price, 0, time.Now().Add(-time.Hour).Unix())

	if _, ok := p.Get("tok-1", types.BUY, price); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if _, ok := p.entries[poolKey("tok-1", types.BUY, price)]; ok {
		t.Fatalf("expected expired entry to be removed as a side effect")
	}
}

func TestPoolGetRejectsStaleEntryWithoutRemoving(t *testing.T) {
	t.Parallel()
	p := newTestPool()
	price := decimal.RequireFromString("0.55")
	// One second from on-venue expiry: inside staleThreshold (2s) but not
	// yet expired.
	seedEntry(p, "tok-1", types.BUY, price, 0, time.Now().Add(time.Second).Unix())

	if _, ok := p.Get("tok-1", types.BUY, price); ok {
		t.Fatalf("expected stale entry to miss")
	}
	if _, ok := p.entries[poolKey("tok-1", types.BUY, price)]; !ok {
		t.Fatalf("stale (but not expired) entry must not be removed by Get")
	}
}

func TestPoolPopRemovesOnHit(t *testing.T) {
	t.Parallel()
	p := newTestPool()
	price := decimal.RequireFromString("0.55")
	seedEntry(p, "tok-1", types.SELL, price, 0, 0)

	o, ok := p.Pop("tok-1", types.SELL, price)
	if !ok || o == nil {
		t.Fatalf("expected pop hit")
	}
	if _, ok := p.Get("tok-1", types.SELL, price); ok {
		t.Fatalf("expected entry gone after pop")
	}
}

func TestPoolGetBestPicksHighestBidLowestAsk(t *testing.T) {
	t.Parallel()
	p := newTestPool()
	seedEntry(p, "tok-1", types.BUY, decimal.RequireFromString("0.40"), 0, 0)
	seedEntry(p, "tok-1", types.BUY, decimal.RequireFromString("0.60"), 0, 0)
	seedEntry(p, "tok-1", types.SELL, decimal.RequireFromString("0.70"), 0, 0)
	seedEntry(p, "tok-1", types.SELL, decimal.RequireFromString("0.65"), 0, 0)

	bestBuy, ok := p.GetBest("tok-1", types.BUY)
	if !ok || !bestBuy.Price.Equal(decimal.RequireFromString("0.60")) {
		t.Errorf("expected best buy 0.60, got %v", bestBuy)
	}

	bestSell, ok := p.GetBest("tok-1", types.SELL)
	if !ok || !bestSell.Price.Equal(decimal.RequireFromString("0.65")) {
		t.Errorf("expected best sell 0.65, got %v", bestSell)
	}
}
