// Package clob implements the execution client adapter: the venue's REST
// and WebSocket surface, a dual token-bucket rate limiter, a per-token
// MarketParams cache, and an order pre-signer with a keyed pre-signed pool.
//
// Every exported method translates the venue's wire format into pkg/types
// domain records at the boundary; callers never see strings or floats for
// money, price, or size.
package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// Client is the execution venue's REST+WS adapter.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger

	gammaBaseURL string
	wsMarketURL  string

	sessions *bookSessionManager
}

// NewClient builds an adapter wired to cfg's endpoints, credentials, and
// rate-limit capacities.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.CLOBBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	c := &Client{
		http:   httpClient,
		auth:   auth,
		dryRun: cfg.DryRun,
		logger: logger.With("component", "clob"),
		rl: NewRateLimiter(RateLimitConfig{
			OrderBurstPerSec:      cfg.RateLimit.OrderBurstPerSec,
			OrderSustainedPerSec:  cfg.RateLimit.OrderSustainedPerSec,
			CancelBurstPerSec:     cfg.RateLimit.CancelBurstPerSec,
			CancelSustainedPerSec: cfg.RateLimit.CancelSustainedPerSec,
			BookBurstPerSec:       cfg.RateLimit.BookBurstPerSec,
			BookSustainedPerSec:   cfg.RateLimit.BookSustainedPerSec,
		}),
		gammaBaseURL: cfg.API.GammaBaseURL,
		wsMarketURL:  cfg.API.WSMarketURL,
	}
	c.sessions = newBookSessionManager(c.wsMarketURL, logger)
	return c
}

// Connect derives L2 credentials if not already configured. It is fatal on
// failure — the process cannot trade without a working adapter.
func (c *Client) Connect(ctx context.Context) error {
	if !c.auth.HasL2Credentials() {
		if _, err := c.DeriveAPIKey(ctx); err != nil {
			return types.NewClobConnectionError("connect", err)
		}
	}
	return nil
}

// Close tears down any open WebSocket sessions. Idempotent.
func (c *Client) Close() error {
	c.sessions.closeAll()
	return nil
}

// GetAllMarkets fetches every page of the venue's market-discovery listing,
// bounded at maxPages to avoid an unbounded crawl against a misbehaving venue.
func (c *Client) GetAllMarkets(ctx context.Context, maxPages int) ([]types.MarketInfo, error) {
	var out []types.MarketInfo
	cursor := ""
	for page := 0; page < maxPages; page++ {
		var result wireMarketsPage
		req := c.http.R().SetContext(ctx).SetResult(&result).SetQueryParam("limit", "100")
		if cursor != "" {
			req.SetQueryParam("next_cursor", cursor)
		}
		resp, err := req.Get("/markets")
		if err != nil {
			return nil, types.NewClobConnectionError("get_all_markets", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, types.NewClobConnectionError("get_all_markets", fmt.Errorf("status %d", resp.StatusCode()))
		}
		for _, m := range result.Data {
			out = append(out, convertMarket(m))
		}
		if result.NextCursor == "" || result.NextCursor == "LTE=" {
			break
		}
		cursor = result.NextCursor
	}
	return out, nil
}

// GetMarket fetches a single market by condition ID.
func (c *Client) GetMarket(ctx context.Context, conditionID string) (*types.MarketInfo, error) {
	m, err := c.fetchWireMarket(ctx, conditionID)
	if err != nil {
		return nil, err
	}
	out := convertMarket(*m)
	return &out, nil
}

func (c *Client) fetchWireMarket(ctx context.Context, conditionID string) (*wireMarket, error) {
	var m wireMarket
	resp, err := c.http.R().SetContext(ctx).SetResult(&m).Get("/markets/" + conditionID)
	if err != nil {
		return nil, types.NewClobConnectionError("get_market", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, types.NewClobConnectionError("get_market", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return &m, nil
}

func convertMarket(m wireMarket) types.MarketInfo {
	tokens := make([]types.OutcomeToken, 0, len(m.Tokens))
	for _, t := range m.Tokens {
		tokens = append(tokens, types.OutcomeToken{TokenID: t.TokenID, Outcome: t.Outcome})
	}
	endDate, _ := time.Parse(time.RFC3339, m.EndDateISO)
	return types.MarketInfo{
		ConditionID:     m.ConditionID,
		Question:        m.Question,
		Tokens:          tokens,
		Active:          m.Active,
		Closed:          m.Closed,
		AcceptingOrders: m.AcceptingOrders,
		EndDate:         endDate,
		Tags:            m.Tags,
		FeeRateBps:      m.FeeRateBps,
	}
}

// GetOrderBook fetches the order book for a single token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBook, error) {
	w, err := c.fetchWireBook(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return convertBook(tokenID, *w), nil
}

func (c *Client) fetchWireBook(ctx context.Context, tokenID string) (*wireBookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	var result wireBookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, types.NewClobConnectionError("get_orderbook", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, types.NewClobConnectionError("get_orderbook", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	return &result, nil
}

// MarketParamsFor fetches the tick size and neg-risk flag needed to sign an
// order for tokenID, from the same endpoint that serves its book. The book
// response carries no fee rate, so FeeRateBps is left at zero.
func (c *Client) MarketParamsFor(ctx context.Context, tokenID string, now time.Time) (types.MarketParams, error) {
	w, err := c.fetchWireBook(ctx, tokenID)
	if err != nil {
		return types.MarketParams{}, err
	}
	tick := types.TickSize(w.TickSize)
	switch tick {
	case types.Tick01, types.Tick001, types.Tick0001, types.Tick00001:
	default:
		tick = types.Tick001
	}
	return types.MarketParams{
		TokenID:   tokenID,
		TickSize:  tick,
		NegRisk:   w.NegRisk,
		FetchedAt: now,
	}, nil
}

// GetOrderBooks fetches multiple order books concurrently, batchSize at a time.
// A failing batch is logged and skipped — best-effort, matching the scanner's
// tolerance for partial data.
func (c *Client) GetOrderBooks(ctx context.Context, tokenIDs []string, batchSize int) (map[string]*types.OrderBook, error) {
	if batchSize <= 0 {
		batchSize = 10
	}
	out := make(map[string]*types.OrderBook)
	for start := 0; start < len(tokenIDs); start += batchSize {
		end := min(start+batchSize, len(tokenIDs))
		batch := tokenIDs[start:end]

		g, gctx := errgroup.WithContext(ctx)
		results := make([]*types.OrderBook, len(batch))
		for i, tokenID := range batch {
			i, tokenID := i, tokenID
			g.Go(func() error {
				book, err := c.GetOrderBook(gctx, tokenID)
				if err != nil {
					c.logger.Warn("book fetch failed in batch", "token_id", tokenID, "error", err)
					return nil
				}
				results[i] = book
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			c.logger.Warn("order book batch error", "error", err)
			continue
		}
		for i, tokenID := range batch {
			if results[i] != nil {
				out[tokenID] = results[i]
			}
		}
	}
	return out, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func convertBook(tokenID string, w wireBookResponse) *types.OrderBook {
	book := &types.OrderBook{TokenID: tokenID}
	if ts, err := strconv.ParseInt(w.Timestamp, 10, 64); err == nil {
		book.Timestamp = time.UnixMilli(ts)
	} else {
		book.Timestamp = time.Now()
	}
	for _, l := range w.Bids {
		book.Bids = append(book.Bids, toLevel(l))
	}
	for _, l := range w.Asks {
		book.Asks = append(book.Asks, toLevel(l))
	}
	return book
}

func toLevel(w wirePriceLevel) types.PriceLevel {
	price, _ := decimal.NewFromString(w.Price)
	size, _ := decimal.NewFromString(w.Size)
	return types.PriceLevel{Price: price, Size: size}
}

// GetMidpoint returns (best_bid+best_ask)/2, or an error if either side is empty.
func (c *Client) GetMidpoint(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	book, err := c.GetOrderBook(ctx, tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, fmt.Errorf("get_midpoint: empty book side for %s", tokenID)
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), nil
}

// GetSpread returns best_ask - best_bid, or an error if either side is empty.
func (c *Client) GetSpread(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	book, err := c.GetOrderBook(ctx, tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	spread, ok := book.Spread()
	if !ok {
		return decimal.Zero, fmt.Errorf("get_spread: empty book side for %s", tokenID)
	}
	return spread, nil
}

// SubscribeOrderBook opens (or reuses) a per-token WS session and invokes
// callback on every book update.
func (c *Client) SubscribeOrderBook(ctx context.Context, tokenID string, callback func(*types.OrderBook)) error {
	return c.sessions.subscribe(ctx, tokenID, callback)
}

// UnsubscribeOrderBook stops the per-token WS session.
func (c *Client) UnsubscribeOrderBook(tokenID string) {
	c.sessions.unsubscribe(tokenID)
}

// PlaceOrder signs and places a single GTC limit order.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest, params types.MarketParams) (*types.ExecutionResult, error) {
	signed, err := Sign(c.auth, req, params, req.ExpirationSecs)
	if err != nil {
		return nil, types.NewClobOrderError("place_order", err)
	}
	return c.postSigned(ctx, signed)
}

// PlaceMarketOrder computes the worst acceptable price from max slippage and
// places a FOK order at that price.
func (c *Client) PlaceMarketOrder(ctx context.Context, req types.MarketOrderRequest, params types.MarketParams) (*types.ExecutionResult, error) {
	worst := req.WorstPrice
	if worst.IsZero() {
		return nil, types.NewClobOrderError("place_market_order", fmt.Errorf("worst price required"))
	}
	signed, err := Sign(c.auth, types.OrderRequest{
		TokenID: req.TokenID,
		Side:    req.Side,
		Price:   worst,
		Size:    req.Size,
	}, params, 0)
	if err != nil {
		return nil, types.NewClobOrderError("place_market_order", err)
	}
	var payload wireOrderPayload
	if err := json.Unmarshal([]byte(signed.Blob), &payload); err != nil {
		return nil, types.NewClobOrderError("place_market_order", err)
	}
	payload.OrderType = string(types.OrderTypeFOK)
	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewClobOrderError("place_market_order", err)
	}
	signed.Blob = string(blob)
	signed.OrderType = types.OrderTypeFOK
	return c.postSigned(ctx, signed)
}

// postSigned places a single pre-signed order and builds its ExecutionResult.
func (c *Client) postSigned(ctx context.Context, signed *types.PreSignedOrder) (*types.ExecutionResult, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place order", "token_id", signed.TokenID, "side", signed.Side, "price", signed.Price)
		return &types.ExecutionResult{
			Success:    true,
			FillPrice:  signed.Price,
			FillSize:   signed.Size,
			HasFill:    true,
			ExecutedAt: time.Now(),
		}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal([]string{signed.Blob})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var results []wireOrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(signed.Blob)).
		SetResult(&results).
		Post("/orders")
	if err != nil {
		return &types.ExecutionResult{Success: false, Error: err.Error(), ExecutedAt: time.Now()}, nil
	}
	if resp.StatusCode() != http.StatusOK || len(results) == 0 || !results[0].Success {
		errText := resp.String()
		if len(results) > 0 {
			errText = results[0].ErrorMsg
		}
		return &types.ExecutionResult{Success: false, Error: errText, ExecutedAt: time.Now()}, nil
	}
	return &types.ExecutionResult{
		Success:    true,
		FillPrice:  signed.Price,
		FillSize:   signed.Size,
		HasFill:    true,
		ExecutedAt: time.Now(),
	}, nil
}

// CancelOrder cancels a single order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.CancelOrders(ctx, []string{orderID})
	return err
}

// CancelOrders cancels multiple orders by ID.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel orders", "count", len(orderIDs))
		return orderIDs, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	payload := struct {
		OrderIDs []string `json:"orderIDs"`
	}{OrderIDs: orderIDs}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal cancel request: %w", err)
	}
	headers, err := c.auth.L2Headers("DELETE", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result wireCancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/orders")
	if err != nil {
		return nil, types.NewClobOrderError("cancel_orders", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, types.NewClobOrderError("cancel_orders", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return result.Canceled, nil
}

// CancelAll cancels every open order across all markets.
func (c *Client) CancelAll(ctx context.Context) ([]string, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders")
		return nil, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}
	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}
	var result wireCancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return nil, types.NewClobOrderError("cancel_all", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, types.NewClobOrderError("cancel_all", fmt.Errorf("status %d", resp.StatusCode()))
	}
	c.logger.Warn("all orders cancelled", "count", len(result.Canceled))
	return result.Canceled, nil
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}
	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, types.NewClobConnectionError("derive_api_key", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, types.NewClobConnectionError("derive_api_key", fmt.Errorf("status %d", resp.StatusCode()))
	}
	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}
