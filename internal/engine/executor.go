package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

// ExecutionClient is the subset of the venue adapter the executor needs to
// place orders. *clob.Client satisfies it for live trading and
// *paper.Adapter for paper trading; backtest replay supplies its own
// Simulator-backed client. The executor never knows which it was given.
type ExecutionClient interface {
	PlaceOrder(ctx context.Context, req types.OrderRequest, params types.MarketParams) (*types.ExecutionResult, error)
	PlaceMarketOrder(ctx context.Context, req types.MarketOrderRequest, params types.MarketParams) (*types.ExecutionResult, error)
}

// ParamsProvider resolves the per-token signing parameters an order needs.
// *clob.ParamsCache satisfies it.
type ParamsProvider interface {
	Get(ctx context.Context, tokenID string, forceRefresh bool, now time.Time) (types.MarketParams, error)
}

// Executor places TradeActions against the execution venue and builds the
// resulting ExecutionResult.
type Executor struct {
	client ExecutionClient
	params ParamsProvider
}

// NewExecutor wires an executor to the venue client and its params cache.
func NewExecutor(client ExecutionClient, params ParamsProvider) *Executor {
	return &Executor{client: client, params: params}
}

// Execute places action and returns its outcome. The returned result's
// Action field is always action, regardless of what the venue returned.
func (e *Executor) Execute(ctx context.Context, action types.TradeAction, now time.Time) types.ExecutionResult {
	mp, err := e.params.Get(ctx, action.TokenID, false, now)
	if err != nil {
		return types.ExecutionResult{Action: action, Success: false, Error: err.Error(), ExecutedAt: now}
	}

	var result *types.ExecutionResult
	if action.OrderType == types.OrderTypeFOK {
		worst := worstPrice(action)
		result, err = e.client.PlaceMarketOrder(ctx, types.MarketOrderRequest{
			TokenID:     action.TokenID,
			Side:        action.Side,
			Size:        action.Size,
			WorstPrice:  worst,
			MaxSlippage: action.MaxSlippage,
		}, mp)
	} else {
		result, err = e.client.PlaceOrder(ctx, types.OrderRequest{
			TokenID: action.TokenID,
			Side:    action.Side,
			Price:   action.Price,
			Size:    action.Size,
		}, mp)
	}

	if err != nil {
		return types.ExecutionResult{Action: action, Success: false, Error: err.Error(), ExecutedAt: now}
	}
	result.Action = action
	return *result
}

// worstPrice computes the FOK worst-acceptable price: price + slippage for
// a BUY (willing to pay more), price - slippage for a SELL (willing to
// receive less).
func worstPrice(action types.TradeAction) decimal.Decimal {
	if action.Side == types.BUY {
		return action.Price.Add(action.MaxSlippage)
	}
	return action.Price.Sub(action.MaxSlippage)
}
