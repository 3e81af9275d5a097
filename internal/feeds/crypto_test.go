package feeds

import (
	"testing"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

func decimalOf(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testCryptoFeed() *CryptoFeed {
	cfg := config.CryptoFeedConfig{
		Pairs: []string{"BTC-USD"},
		Exchanges: []config.CryptoExchangeConfig{
			{Name: "primary-ex", Primary: true},
			{Name: "validator-ex"},
		},
		PriceMoveThresholdPct:  1.0,
		ValidationThresholdPct: 0.5,
	}
	return NewCryptoFeed(cfg, testLogger())
}

func TestCryptoFeedEmitsOnValidatedMove(t *testing.T) {
	f := testCryptoFeed()
	var events []types.FeedEvent
	f.OnEvent(func(e types.FeedEvent) { events = append(events, e) })

	f.recordTrade("primary-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(50000)})
	f.recordTrade("validator-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(50000)})
	f.checkMoves() // establishes baseline, no move yet relative to itself

	f.recordTrade("primary-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(50600)}) // +1.2%
	f.recordTrade("validator-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(50580)})
	f.checkMoves()

	if len(events) != 1 {
		t.Fatalf("expected 1 emitted event, got %d", len(events))
	}
}

func TestCryptoFeedUnvalidatedMoveStillEmits(t *testing.T) {
	f := testCryptoFeed()
	var events []types.FeedEvent
	f.OnEvent(func(e types.FeedEvent) { events = append(events, e) })

	f.recordTrade("primary-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(50000)})
	f.recordTrade("validator-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(50000)})
	f.checkMoves()

	// Primary spikes, validator does not follow: fails cross-validation, but
	// the move must still be reported — validation is metadata, not a gate.
	f.recordTrade("primary-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(51000)})
	f.recordTrade("validator-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(50010)})
	f.checkMoves()

	if len(events) != 1 {
		t.Fatalf("an unvalidated move must still emit, got %d events", len(events))
	}
	validated, ok := events[0].Metadata["validated"].(bool)
	if !ok || validated {
		t.Fatalf("expected validated=false in metadata, got %v", events[0].Metadata["validated"])
	}
}

func TestCryptoFeedBelowThresholdSuppressed(t *testing.T) {
	f := testCryptoFeed()
	var events []types.FeedEvent
	f.OnEvent(func(e types.FeedEvent) { events = append(events, e) })

	f.recordTrade("primary-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(50000)})
	f.checkMoves()

	f.recordTrade("primary-ex", wireTrade{Pair: "BTC-USD", Price: decimalOf(50100)}) // +0.2%
	f.checkMoves()

	if len(events) != 0 {
		t.Fatalf("a sub-threshold move must not emit, got %d events", len(events))
	}
}

func TestPairSymbolMapping(t *testing.T) {
	if got := pairToBinanceSymbol("BTC_USDT"); got != "btcusdt" {
		t.Fatalf("binance symbol = %q, want btcusdt", got)
	}
	if got := pairToDashSymbol("BTC_USDT"); got != "BTC-USD" {
		t.Fatalf("coinbase product = %q, want BTC-USD", got)
	}
	if got := pairToSlashSymbol("BTC_USDT"); got != "BTC/USD" {
		t.Fatalf("kraken symbol = %q, want BTC/USD", got)
	}
}

func TestCryptoSessionParsesBinanceTicker(t *testing.T) {
	var got wireTrade
	s := newCryptoSession("binance", "", []string{"BTC_USDT"}, testLogger(), func(exchange string, t wireTrade) {
		got = t
	})
	s.handleMessage([]byte(`{"e":"24hrTicker","s":"BTCUSDT","c":"50250.12","P":"1.3","E":1717000000000}`))
	if got.Pair != "BTC_USDT" {
		t.Fatalf("pair = %q, want BTC_USDT", got.Pair)
	}
	if !got.Price.Equal(decimalOf(50250.12)) {
		t.Fatalf("price = %s, want 50250.12", got.Price)
	}
}

func TestCryptoSessionParsesCoinbaseTicker(t *testing.T) {
	var got wireTrade
	s := newCryptoSession("coinbase", "", []string{"BTC_USDT"}, testLogger(), func(exchange string, t wireTrade) {
		got = t
	})
	s.handleMessage([]byte(`{"type":"ticker","product_id":"BTC-USD","price":"50310.00"}`))
	if got.Pair != "BTC_USDT" {
		t.Fatalf("pair = %q, want BTC_USDT", got.Pair)
	}
	if !got.Price.Equal(decimalOf(50310.00)) {
		t.Fatalf("price = %s, want 50310.00", got.Price)
	}

	// A non-ticker message type must be ignored.
	got = wireTrade{}
	s.handleMessage([]byte(`{"type":"subscriptions","product_id":"BTC-USD","price":"1"}`))
	if got.Pair != "" {
		t.Fatalf("expected non-ticker message to be ignored, got %+v", got)
	}
}

func TestCryptoSessionParsesKrakenTicker(t *testing.T) {
	var got wireTrade
	s := newCryptoSession("kraken", "", []string{"BTC_USDT"}, testLogger(), func(exchange string, t wireTrade) {
		got = t
	})
	s.handleMessage([]byte(`{"channel":"ticker","data":[{"symbol":"BTC/USD","last":50420.5}]}`))
	if got.Pair != "BTC_USDT" {
		t.Fatalf("pair = %q, want BTC_USDT", got.Pair)
	}
	if !got.Price.Equal(decimalOf(50420.5)) {
		t.Fatalf("price = %s, want 50420.5", got.Price)
	}
}

func TestCryptoSessionUnknownSymbolIgnored(t *testing.T) {
	var called bool
	s := newCryptoSession("binance", "", []string{"BTC_USDT"}, testLogger(), func(exchange string, t wireTrade) {
		called = true
	})
	s.handleMessage([]byte(`{"s":"DOGEUSDT","c":"0.1"}`))
	if called {
		t.Fatalf("expected an unconfigured symbol to be ignored")
	}
}
