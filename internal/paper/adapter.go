package paper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

// ReadClient is the subset of the real venue adapter whose responses the
// paper adapter delegates unchanged. *clob.Client satisfies it.
type ReadClient interface {
	GetAllMarkets(ctx context.Context, maxPages int) ([]types.MarketInfo, error)
	GetMarket(ctx context.Context, conditionID string) (*types.MarketInfo, error)
	GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBook, error)
	GetOrderBooks(ctx context.Context, tokenIDs []string, batchSize int) (map[string]*types.OrderBook, error)
	GetMidpoint(ctx context.Context, tokenID string) (decimal.Decimal, error)
	GetSpread(ctx context.Context, tokenID string) (decimal.Decimal, error)
	SubscribeOrderBook(ctx context.Context, tokenID string, callback func(*types.OrderBook)) error
	UnsubscribeOrderBook(tokenID string)
	MarketParamsFor(ctx context.Context, tokenID string, now time.Time) (types.MarketParams, error)
}

// Adapter is the paper-trading execution client: every read delegates to
// the real venue client, every write goes to the in-process Simulator.
// Each orderbook read additionally syncs the book into the simulator and
// marks the token tracked, so fills always reflect the most recently
// observed depth.
type Adapter struct {
	read ReadClient
	sim  *Simulator
	logger *slog.Logger

	trackedMu sync.Mutex
	tracked   map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAdapter wraps real for reads and sim for simulated writes.
func NewAdapter(real ReadClient, sim *Simulator, logger *slog.Logger) *Adapter {
	return &Adapter{
		read:    real,
		sim:     sim,
		logger:  logger.With("component", "paper_adapter"),
		tracked: make(map[string]bool),
	}
}

func (a *Adapter) track(tokenID string, book *types.OrderBook) {
	if book == nil {
		return
	}
	a.sim.SyncBook(tokenID, *book)
	a.trackedMu.Lock()
	a.tracked[tokenID] = true
	a.trackedMu.Unlock()
}

// GetAllMarkets delegates unchanged.
func (a *Adapter) GetAllMarkets(ctx context.Context, maxPages int) ([]types.MarketInfo, error) {
	return a.read.GetAllMarkets(ctx, maxPages)
}

// GetMarket delegates unchanged.
func (a *Adapter) GetMarket(ctx context.Context, conditionID string) (*types.MarketInfo, error) {
	return a.read.GetMarket(ctx, conditionID)
}

// GetOrderBook delegates to the real client and syncs the result into the
// simulator, marking tokenID tracked.
func (a *Adapter) GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBook, error) {
	book, err := a.read.GetOrderBook(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	a.track(tokenID, book)
	return book, nil
}

// GetOrderBooks delegates to the real client and syncs every result.
func (a *Adapter) GetOrderBooks(ctx context.Context, tokenIDs []string, batchSize int) (map[string]*types.OrderBook, error) {
	books, err := a.read.GetOrderBooks(ctx, tokenIDs, batchSize)
	if err != nil {
		return nil, err
	}
	for tokenID, book := range books {
		a.track(tokenID, book)
	}
	return books, nil
}

// GetMidpoint delegates unchanged.
func (a *Adapter) GetMidpoint(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	return a.read.GetMidpoint(ctx, tokenID)
}

// GetSpread delegates unchanged.
func (a *Adapter) GetSpread(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	return a.read.GetSpread(ctx, tokenID)
}

// SubscribeOrderBook delegates to the real client, syncing every pushed
// book into the simulator and marking the token tracked before passing it
// to callback.
func (a *Adapter) SubscribeOrderBook(ctx context.Context, tokenID string, callback func(*types.OrderBook)) error {
	return a.read.SubscribeOrderBook(ctx, tokenID, func(book *types.OrderBook) {
		a.track(tokenID, book)
		callback(book)
	})
}

// UnsubscribeOrderBook delegates unchanged.
func (a *Adapter) UnsubscribeOrderBook(tokenID string) {
	a.read.UnsubscribeOrderBook(tokenID)
}

// Get satisfies engine.ParamsProvider by delegating to the real client's
// MarketParamsFor — signing parameters are real even in paper mode.
func (a *Adapter) Get(ctx context.Context, tokenID string, forceRefresh bool, now time.Time) (types.MarketParams, error) {
	return a.read.MarketParamsFor(ctx, tokenID, now)
}

// PlaceOrder simulates a GTC limit order against the simulator's tracked
// book for req.TokenID.
func (a *Adapter) PlaceOrder(ctx context.Context, req types.OrderRequest, params types.MarketParams) (*types.ExecutionResult, error) {
	return a.sim.PlaceOrder(req, req.Price), nil
}

// PlaceMarketOrder simulates a FOK market order.
func (a *Adapter) PlaceMarketOrder(ctx context.Context, req types.MarketOrderRequest, params types.MarketParams) (*types.ExecutionResult, error) {
	return a.sim.PlaceMarketOrder(req), nil
}

// Run periodically re-fetches every tracked token's order book and syncs
// it into the simulator, so fills reflect current market depth even
// between engine-driven reads.
func (a *Adapter) Run(ctx context.Context, interval time.Duration) {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				a.refreshTracked(runCtx)
			}
		}
	}()
}

func (a *Adapter) refreshTracked(ctx context.Context) {
	a.trackedMu.Lock()
	tokens := make([]string, 0, len(a.tracked))
	for t := range a.tracked {
		tokens = append(tokens, t)
	}
	a.trackedMu.Unlock()

	if len(tokens) == 0 {
		return
	}
	books, err := a.read.GetOrderBooks(ctx, tokens, len(tokens))
	if err != nil {
		a.logger.Warn("paper: tracked book refresh failed", "error", err)
		return
	}
	for tokenID, book := range books {
		a.track(tokenID, book)
	}
}

// Stop cancels the background refresh loop and waits for it to exit.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}
