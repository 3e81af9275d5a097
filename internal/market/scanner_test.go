package market

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

type fakeClient struct {
	markets []types.MarketInfo
	books   map[string]*types.OrderBook
	subs    map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{books: make(map[string]*types.OrderBook), subs: make(map[string]bool)}
}

func (f *fakeClient) GetAllMarkets(ctx context.Context, maxPages int) ([]types.MarketInfo, error) {
	return f.markets, nil
}

func (f *fakeClient) GetOrderBooks(ctx context.Context, tokenIDs []string, batchSize int) (map[string]*types.OrderBook, error) {
	out := make(map[string]*types.OrderBook)
	for _, id := range tokenIDs {
		if b, ok := f.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (f *fakeClient) SubscribeOrderBook(ctx context.Context, tokenID string, cb func(*types.OrderBook)) error {
	f.subs[tokenID] = true
	return nil
}

func (f *fakeClient) UnsubscribeOrderBook(tokenID string) {
	delete(f.subs, tokenID)
}

func mkBook(tokenID string, bid, ask, size float64) *types.OrderBook {
	return &types.OrderBook{
		TokenID: tokenID,
		Bids:    []types.PriceLevel{{Price: decimal.NewFromFloat(bid), Size: decimal.NewFromFloat(size)}},
		Asks:    []types.PriceLevel{{Price: decimal.NewFromFloat(ask), Size: decimal.NewFromFloat(size)}},
	}
}

func testScannerConfig() config.ScannerConfig {
	return config.ScannerConfig{
		PollInterval:  time.Minute,
		MaxTracked:    10,
		MaxPages:      5,
		BookBatchSize: 10,
		Filter:        config.ScanFilter{RequireActive: true, ExcludeClosed: true},
		Liquidity:     config.LiquidityScreen{MinDepthUSD: 100},
	}
}

func TestClassifyByTag(t *testing.T) {
	m := types.MarketInfo{Tags: []string{"Crypto"}, Question: "Will it rain"}
	if got := Classify(m); got != types.CategoryCrypto {
		t.Fatalf("expected CRYPTO, got %s", got)
	}
}

func TestClassifyByKeyword(t *testing.T) {
	m := types.MarketInfo{Question: "Will CPI come in above expectations?"}
	if got := Classify(m); got != types.CategoryEconomic {
		t.Fatalf("expected ECONOMIC, got %s", got)
	}
}

func TestClassifyOther(t *testing.T) {
	m := types.MarketInfo{Question: "Will it rain in Paris?"}
	if got := Classify(m); got != types.CategoryOther {
		t.Fatalf("expected OTHER, got %s", got)
	}
}

func TestScanOnceFindsAndScoresOpportunity(t *testing.T) {
	client := newFakeClient()
	client.markets = []types.MarketInfo{
		{
			ConditionID: "cond1",
			Question:    "Will CPI be above 3.0%?",
			Active:      true,
			Tokens:      []types.OutcomeToken{{TokenID: "t_y", Outcome: "Yes"}, {TokenID: "t_n", Outcome: "No"}},
			EndDate:     time.Now().Add(48 * time.Hour),
		},
	}
	client.books["t_y"] = mkBook("t_y", 0.45, 0.50, 5000)

	s := NewScanner(client, testScannerConfig(), testLogger())
	opps := s.ScanOnce(context.Background())
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	if opps[0].Category != types.CategoryEconomic {
		t.Fatalf("expected ECONOMIC category, got %s", opps[0].Category)
	}
	if !client.subs["t_y"] {
		t.Fatalf("expected scanner to subscribe to t_y")
	}
}

func TestFirstSeenPreservedAcrossRescans(t *testing.T) {
	client := newFakeClient()
	market := types.MarketInfo{
		ConditionID: "cond1",
		Question:    "Will CPI be above 3.0%?",
		Active:      true,
		Tokens:      []types.OutcomeToken{{TokenID: "t_y", Outcome: "Yes"}},
	}
	client.markets = []types.MarketInfo{market}
	client.books["t_y"] = mkBook("t_y", 0.45, 0.50, 5000)

	s := NewScanner(client, testScannerConfig(), testLogger())
	first := s.ScanOnce(context.Background())
	firstSeen := first[0].FirstSeen

	time.Sleep(5 * time.Millisecond)
	client.books["t_y"] = mkBook("t_y", 0.46, 0.51, 6000)
	second := s.ScanOnce(context.Background())

	if !second[0].FirstSeen.Equal(firstSeen) {
		t.Fatalf("first_seen changed across rescan: %v -> %v", firstSeen, second[0].FirstSeen)
	}
	if !second[0].LastUpdated.After(firstSeen) {
		t.Fatalf("last_updated did not advance")
	}
}

func TestFetchFailureLeavesSnapshotUntouched(t *testing.T) {
	client := newFakeClient()
	client.markets = []types.MarketInfo{
		{ConditionID: "cond1", Question: "Q", Active: true, Tokens: []types.OutcomeToken{{TokenID: "t_y", Outcome: "Yes"}}},
	}
	client.books["t_y"] = mkBook("t_y", 0.45, 0.50, 5000)

	s := NewScanner(client, testScannerConfig(), testLogger())
	first := s.ScanOnce(context.Background())
	if len(first) != 1 {
		t.Fatalf("setup: expected 1 opportunity")
	}

	failing := &failingClient{}
	s.client = failing
	second := s.ScanOnce(context.Background())
	if len(second) != 1 {
		t.Fatalf("expected snapshot preserved on fetch failure, got %d", len(second))
	}
}

type failingClient struct{}

func (f *failingClient) GetAllMarkets(ctx context.Context, maxPages int) ([]types.MarketInfo, error) {
	return nil, context.DeadlineExceeded
}
func (f *failingClient) GetOrderBooks(ctx context.Context, tokenIDs []string, batchSize int) (map[string]*types.OrderBook, error) {
	return nil, nil
}
func (f *failingClient) SubscribeOrderBook(ctx context.Context, tokenID string, cb func(*types.OrderBook)) error {
	return nil
}
func (f *failingClient) UnsubscribeOrderBook(tokenID string) {}

func TestLiquidityScreenEvictsOnWSUpdate(t *testing.T) {
	client := newFakeClient()
	client.markets = []types.MarketInfo{
		{ConditionID: "cond1", Question: "Q", Active: true, Tokens: []types.OutcomeToken{{TokenID: "t_y", Outcome: "Yes"}}},
	}
	client.books["t_y"] = mkBook("t_y", 0.45, 0.50, 5000)

	s := NewScanner(client, testScannerConfig(), testLogger())
	first := s.ScanOnce(context.Background())
	if len(first) != 1 {
		t.Fatalf("setup: expected 1 opportunity")
	}

	cb := s.makeBookCallback("cond1", "t_y")
	cb(mkBook("t_y", 0.45, 0.50, 1)) // depth now far below min

	if len(s.Opportunities()) != 0 {
		t.Fatalf("expected opportunity evicted by liquidity screen")
	}
}
