// Package paper implements the paper-trading adapter and the simulated
// execution client it delegates writes to. Reads are served from the real
// venue client; fills are synthesized from tracked order-book state so
// backtests and dry runs exercise the exact same engine/risk code paths as
// live trading.
package paper

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

// FillRecord is appended for every simulated order attempt, filled or not.
type FillRecord struct {
	Timestamp      time.Time
	TokenID        string
	Side           types.Side
	OrderType      types.OrderType
	RequestedPrice decimal.Decimal
	RequestedSize  decimal.Decimal
	FillPrice      decimal.Decimal
	FillSize       decimal.Decimal
	Success        bool
}

// Simulator is the fake execution client used by the paper adapter and the
// backtest replay driver. It never makes a network call.
type Simulator struct {
	mu sync.Mutex

	fillProbability decimal.Decimal
	slippageBps     int64

	books map[string]*types.OrderBook

	counter atomic.Int64

	clockMu sync.Mutex
	clock   *time.Time // settable simulated clock; nil means wall clock

	fills []FillRecord
}

// NewSimulator builds a simulator with the given fill probability in [0,1]
// and slippage applied on every synthesized fill.
func NewSimulator(fillProbability float64, slippageBps int64) *Simulator {
	return &Simulator{
		fillProbability: decimal.NewFromFloat(fillProbability),
		slippageBps:     slippageBps,
		books:           make(map[string]*types.OrderBook),
	}
}

// SetClock pins the simulator's notion of "now" for deterministic
// backtests. Pass nil to revert to the wall clock.
func (s *Simulator) SetClock(t *time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.clock = t
}

func (s *Simulator) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if s.clock != nil {
		return *s.clock
	}
	return time.Now()
}

// SyncBook replaces the simulator's view of tokenID's book, used by the
// paper adapter's background refresh and by a backtest replay driver
// feeding historical snapshots.
func (s *Simulator) SyncBook(tokenID string, book types.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := book
	s.books[tokenID] = &b
}

// Fills returns a defensive copy of every simulated attempt.
func (s *Simulator) Fills() []FillRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FillRecord, len(s.fills))
	copy(out, s.fills)
	return out
}

// stableRandom derives a deterministic pseudo-random float in [0,1) from a
// hash of the attempt's identifying fields plus a monotonic counter, so
// repeated identical requests within one run still vary.
func stableRandom(tokenID string, side types.Side, price, size decimal.Decimal, counter int64) decimal.Decimal {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", tokenID, side, price.String(), size.String(), counter)))
	bits := binary.BigEndian.Uint64(h[:8])
	// Scale into [0,1) using the full uint64 range as denominator.
	frac := float64(bits) / float64(math.MaxUint64)
	return decimal.NewFromFloat(frac)
}

// PlaceOrder simulates a GTC limit order: partial fills are allowed.
func (s *Simulator) PlaceOrder(req types.OrderRequest, price decimal.Decimal) *types.ExecutionResult {
	return s.simulate(req.TokenID, req.Side, price, req.Size, types.OrderTypeGTC, price)
}

// PlaceMarketOrder simulates a FOK market order bounded by req.WorstPrice:
// a fill that doesn't cover the full requested size is rejected entirely.
func (s *Simulator) PlaceMarketOrder(req types.MarketOrderRequest) *types.ExecutionResult {
	return s.simulate(req.TokenID, req.Side, req.WorstPrice, req.Size, types.OrderTypeFOK, req.WorstPrice)
}

func (s *Simulator) simulate(tokenID string, side types.Side, requestedPrice, size decimal.Decimal, orderType types.OrderType, limitPrice decimal.Decimal) *types.ExecutionResult {
	now := s.now()
	counter := s.counter.Add(1)

	r := stableRandom(tokenID, side, requestedPrice, size, counter)
	if r.GreaterThanOrEqual(s.fillProbability) {
		s.record(FillRecord{
			Timestamp: now, TokenID: tokenID, Side: side, OrderType: orderType,
			RequestedPrice: requestedPrice, RequestedSize: size, Success: false,
		})
		return &types.ExecutionResult{Success: false, ExecutedAt: now, Error: "simulated rejection"}
	}

	s.mu.Lock()
	book := s.books[tokenID]
	s.mu.Unlock()
	if book == nil {
		s.record(FillRecord{
			Timestamp: now, TokenID: tokenID, Side: side, OrderType: orderType,
			RequestedPrice: requestedPrice, RequestedSize: size, Success: false,
		})
		return &types.ExecutionResult{Success: false, ExecutedAt: now, Error: "no book tracked for token"}
	}

	filledSize, notional := walkBook(*book, side, limitPrice, size)

	if orderType == types.OrderTypeFOK && filledSize.LessThan(size) {
		s.record(FillRecord{
			Timestamp: now, TokenID: tokenID, Side: side, OrderType: orderType,
			RequestedPrice: requestedPrice, RequestedSize: size, Success: false,
		})
		return &types.ExecutionResult{Success: false, ExecutedAt: now, Error: "insufficient liquidity for fill-or-kill"}
	}
	if filledSize.IsZero() {
		s.record(FillRecord{
			Timestamp: now, TokenID: tokenID, Side: side, OrderType: orderType,
			RequestedPrice: requestedPrice, RequestedSize: size, Success: false,
		})
		return &types.ExecutionResult{Success: false, ExecutedAt: now, Error: "no liquidity at requested price"}
	}

	vwap := notional.Div(filledSize)
	vwap = applySlippage(vwap, side, s.slippageBps)

	s.record(FillRecord{
		Timestamp: now, TokenID: tokenID, Side: side, OrderType: orderType,
		RequestedPrice: requestedPrice, RequestedSize: size,
		FillPrice: vwap, FillSize: filledSize, Success: true,
	})
	return &types.ExecutionResult{
		Success: true, FillPrice: vwap, FillSize: filledSize, HasFill: true, ExecutedAt: now,
	}
}

func (s *Simulator) record(rec FillRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, rec)
}

// walkBook consumes the opposite side of the book up to limitPrice: a BUY
// consumes asks ascending, a SELL consumes bids descending. Returns the
// total size filled and its notional (for a VWAP divide by filledSize).
func walkBook(book types.OrderBook, side types.Side, limitPrice, size decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	var levels []types.PriceLevel
	if side == types.BUY {
		levels = book.Asks // ascending
	} else {
		levels = book.Bids // descending
	}

	remaining := size
	filled := decimal.Zero
	notional := decimal.Zero
	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if side == types.BUY && lvl.Price.GreaterThan(limitPrice) {
			break
		}
		if side == types.SELL && lvl.Price.LessThan(limitPrice) {
			break
		}
		take := lvl.Size
		if take.GreaterThan(remaining) {
			take = remaining
		}
		filled = filled.Add(take)
		notional = notional.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
	}
	return filled, notional
}

// applySlippage worsens the fill price by bps: buys pay more, sells
// receive less.
func applySlippage(price decimal.Decimal, side types.Side, bps int64) decimal.Decimal {
	if bps == 0 {
		return price
	}
	factor := decimal.NewFromInt(bps).Div(decimal.NewFromInt(10000))
	if side == types.BUY {
		return price.Mul(decimal.NewFromInt(1).Add(factor))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(factor))
}
