package engine

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/clob"
	"polyarb/internal/config"
	"polyarb/internal/risk"
	"polyarb/pkg/types"
)

func testEngineLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeScanner is a fixed OpportunitySource.
type fakeScanner struct {
	opps map[string]types.MarketOpportunity
}

func (f *fakeScanner) Opportunities() map[string]types.MarketOpportunity { return f.opps }

func newTestEngine(t *testing.T, opp types.MarketOpportunity) (*Engine, *risk.Monitor) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"market":"m","asset_id":"tok-yes","bids":[],"asks":[],"tick_size":"0.01","neg_risk":false}`))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{
		DryRun: true,
		API:    config.APIConfig{CLOBBaseURL: srv.URL},
		Wallet: config.WalletConfig{
			PrivateKey: "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690",
			ChainID:    137,
		},
	}
	auth, err := clob.NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	client := clob.NewClient(cfg, auth, testEngineLogger())
	params := clob.NewParamsCache(client, time.Minute)
	executor := NewExecutor(client, params)

	scanner := &fakeScanner{opps: map[string]types.MarketOpportunity{opp.ConditionID: opp}}
	riskMonitor := risk.NewMonitor(config.RiskConfig{}, config.OracleConfig{}, testEngineLogger(), time.Now())

	eng := New(testStrategyConfig(), scanner, executor, riskMonitor, testEngineLogger())
	eng.Start(nil)
	return eng, riskMonitor
}

func cpiOpportunity() types.MarketOpportunity {
	return types.MarketOpportunity{
		ConditionID: "cond-cpi",
		Question:    "Will CPI come in above 3.0% this month?",
		Category:    types.CategoryEconomic,
		BestBid:     decimal.NewFromFloat(0.45),
		BestAsk:     decimal.NewFromFloat(0.50),
		DepthUSD:    decimal.NewFromFloat(10000),
		Market: types.MarketInfo{
			Tokens: []types.OutcomeToken{
				{TokenID: "tok-yes", Outcome: "Yes"},
				{TokenID: "tok-no", Outcome: "No"},
			},
		},
	}
}

func TestEngineProcessEventCPIBeatBuysYes(t *testing.T) {
	eng, _ := newTestEngine(t, cpiOpportunity())

	event := types.FeedEvent{
		FeedType:     types.FeedEconomic,
		EventType:    types.DataReleased,
		Indicator:    "cpi",
		NumericValue: decimal.NewFromFloat(3.2),
		HasNumeric:   true,
		ReceivedAt:   time.Now(),
	}

	results := eng.ProcessEvent(event)
	if len(results) != 1 {
		t.Fatalf("expected 1 execution result, got %d", len(results))
	}
	r := results[0]
	if !r.Success {
		t.Fatalf("expected a successful fill, got error %q", r.Error)
	}
	if r.Action.TokenID != "tok-yes" {
		t.Fatalf("token = %q, want tok-yes", r.Action.TokenID)
	}
	if r.Action.Side != types.BUY {
		t.Fatalf("side = %s, want BUY", r.Action.Side)
	}
	if !r.Action.Price.Equal(decimal.NewFromFloat(0.50)) {
		t.Fatalf("price = %s, want 0.50 (best ask)", r.Action.Price)
	}

	stats := eng.Stats()
	if stats.TradesExecuted != 1 {
		t.Fatalf("trades_executed = %d, want 1", stats.TradesExecuted)
	}
	if stats.SignalsGenerated != 1 {
		t.Fatalf("signals_generated = %d, want 1", stats.SignalsGenerated)
	}
}

func TestEngineProcessEventSportsWinnerBuys(t *testing.T) {
	opp := types.MarketOpportunity{
		ConditionID: "cond-nfl",
		Question:    "Will the Chiefs beat the Bills?",
		Category:    types.CategorySports,
		BestBid:     decimal.NewFromFloat(0.45),
		BestAsk:     decimal.NewFromFloat(0.50),
		DepthUSD:    decimal.NewFromFloat(10000),
		Market: types.MarketInfo{
			Tokens: []types.OutcomeToken{
				{TokenID: "tok-yes", Outcome: "Yes"},
				{TokenID: "tok-no", Outcome: "No"},
			},
		},
	}
	eng, _ := newTestEngine(t, opp)

	event := types.FeedEvent{
		FeedType:    types.FeedSports,
		EventType:   types.DataReleased,
		OutcomeType: types.OutcomeCategorical,
		ReceivedAt:  time.Now(),
		Metadata: map[string]any{
			"winner":    "Chiefs",
			"home_team": "Chiefs",
			"away_team": "Bills",
		},
	}

	results := eng.ProcessEvent(event)
	if len(results) != 1 {
		t.Fatalf("expected 1 execution result, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("expected a successful fill, got error %q", results[0].Error)
	}
	if !results[0].Action.Price.Equal(decimal.NewFromFloat(0.50)) {
		t.Fatalf("price = %s, want 0.50", results[0].Action.Price)
	}
}

func TestEngineProcessEventCryptoCrossValidatedConfidence(t *testing.T) {
	opp := types.MarketOpportunity{
		ConditionID: "cond-btc",
		Question:    "Will BTC trade above $60000 today?",
		Category:    types.CategoryCrypto,
		BestBid:     decimal.NewFromFloat(0.45),
		BestAsk:     decimal.NewFromFloat(0.50),
		DepthUSD:    decimal.NewFromFloat(10000),
		Market: types.MarketInfo{
			Tokens: []types.OutcomeToken{
				{TokenID: "tok-yes", Outcome: "Yes"},
				{TokenID: "tok-no", Outcome: "No"},
			},
		},
	}
	eng, _ := newTestEngine(t, opp)

	var gotSignal *types.Signal
	eng.OnEvent(func(evt types.EngineEvent) {
		if evt.Type == types.EvtSignalGenerated {
			gotSignal = evt.Signal
		}
	})

	event := types.FeedEvent{
		FeedType:     types.FeedCrypto,
		EventType:    types.DataReleased,
		Indicator:    "BTC_USDT",
		NumericValue: decimal.NewFromFloat(61000),
		HasNumeric:   true,
		ReceivedAt:   time.Now(),
		Metadata:     map[string]any{"validated": true},
	}

	results := eng.ProcessEvent(event)
	if len(results) != 1 {
		t.Fatalf("expected 1 execution result, got %d", len(results))
	}
	if gotSignal == nil {
		t.Fatalf("expected a SIGNAL_GENERATED event")
	}
	if !gotSignal.Confidence.Equal(decimal.NewFromFloat(0.92)) {
		t.Fatalf("confidence = %s, want 0.92", gotSignal.Confidence)
	}
}

func TestEngineOnFeedEventIgnoredWhenStopped(t *testing.T) {
	eng, _ := newTestEngine(t, cpiOpportunity())
	eng.Stop()

	event := types.FeedEvent{
		FeedType:     types.FeedEconomic,
		EventType:    types.DataReleased,
		Indicator:    "cpi",
		NumericValue: decimal.NewFromFloat(3.2),
		HasNumeric:   true,
		ReceivedAt:   time.Now(),
	}
	eng.OnFeedEvent(event)

	if stats := eng.Stats(); stats.SignalsGenerated != 0 {
		t.Fatalf("expected no processing while stopped, got %d signals", stats.SignalsGenerated)
	}
}
