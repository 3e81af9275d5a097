// ratelimit.go implements the dual token-bucket rate limiter required of
// every write (order place/cancel) and read (book fetch) call against the
// execution venue: a burst bucket and a sustained bucket must both yield a
// token before the call proceeds. Buckets refill continuously.
package clob

import (
	"context"
	"sync"
	"time"
)

// minWait floors DualBucket.Wait's sleep so a bucket that yields immediately
// after its partner restores doesn't spin the select loop re-locking both
// buckets every tick.
const minWait = time.Millisecond

// TokenBucket is a single continuously-refilling token bucket.
// Callers block in Wait() until a token is available or ctx is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens refilled per second
	lastTime time.Time
}

// NewTokenBucket creates a bucket with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// tryTake attempts to take one token without blocking. Returns whether it
// succeeded and, if not, the wait duration until the next token is due.
func (tb *TokenBucket) tryTake() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastTime).Seconds()
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastTime = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	return false, wait
}

// restore returns a token to the bucket (used when its partner bucket in a
// dual-bucket pair failed to yield, to avoid a leak).
func (tb *TokenBucket) restore() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens++
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		ok, wait := tb.tryTake()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// DualBucket composes a burst bucket and a sustained bucket. A caller must
// acquire a token from both before proceeding; if only one yields, its
// token is restored so neither bucket leaks capacity while the caller waits
// on the other.
type DualBucket struct {
	burst     *TokenBucket
	sustained *TokenBucket
}

// NewDualBucket creates a dual bucket with independent burst/sustained rates.
// Both buckets use their rate as their capacity (one second of headroom).
func NewDualBucket(burstPerSec, sustainedPerSec float64) *DualBucket {
	return &DualBucket{
		burst:     NewTokenBucket(burstPerSec, burstPerSec),
		sustained: NewTokenBucket(sustainedPerSec, sustainedPerSec),
	}
}

// Wait blocks until both the burst and sustained buckets yield a token.
func (d *DualBucket) Wait(ctx context.Context) error {
	for {
		burstOK, burstWait := d.burst.tryTake()
		sustainedOK, sustainedWait := d.sustained.tryTake()

		if burstOK && sustainedOK {
			return nil
		}
		if burstOK {
			d.burst.restore()
		}
		if sustainedOK {
			d.sustained.restore()
		}

		wait := burstWait
		if sustainedWait > wait {
			wait = sustainedWait
		}
		if wait < minWait {
			wait = minWait
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups dual token buckets by venue call category.
type RateLimiter struct {
	Order  *DualBucket
	Cancel *DualBucket
	Book   *DualBucket
}

// RateLimitConfig carries the burst/sustained rates for each category.
type RateLimitConfig struct {
	OrderBurstPerSec, OrderSustainedPerSec   float64
	CancelBurstPerSec, CancelSustainedPerSec float64
	BookBurstPerSec, BookSustainedPerSec     float64
}

// NewRateLimiter builds a RateLimiter from config, falling back to the
// venue's published defaults when a rate is unset.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	orderBurst, orderSustained := nonZero(cfg.OrderBurstPerSec, 350), nonZero(cfg.OrderSustainedPerSec, 50)
	cancelBurst, cancelSustained := nonZero(cfg.CancelBurstPerSec, 300), nonZero(cfg.CancelSustainedPerSec, 30)
	bookBurst, bookSustained := nonZero(cfg.BookBurstPerSec, 150), nonZero(cfg.BookSustainedPerSec, 15)

	return &RateLimiter{
		Order:  NewDualBucket(orderBurst, orderSustained),
		Cancel: NewDualBucket(cancelBurst, cancelSustained),
		Book:   NewDualBucket(bookBurst, bookSustained),
	}
}

func nonZero(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
