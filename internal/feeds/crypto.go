package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

const (
	cryptoPingInterval     = 30 * time.Second
	cryptoReadTimeout      = 60 * time.Second
	cryptoWriteTimeout     = 10 * time.Second
	cryptoMaxReconnectWait = 30 * time.Second
)

// exchangeKind identifies which of the three supported wire formats a
// session speaks, derived from the configured exchange name.
type exchangeKind int

const (
	exchangeGeneric exchangeKind = iota
	exchangeBinance
	exchangeCoinbase
	exchangeKraken
)

func kindOf(name string) exchangeKind {
	switch strings.ToLower(name) {
	case "binance":
		return exchangeBinance
	case "coinbase":
		return exchangeCoinbase
	case "kraken":
		return exchangeKraken
	default:
		return exchangeGeneric
	}
}

// pairToBinanceSymbol maps "BTC_USDT" to Binance's lowercase, no-separator
// stream symbol "btcusdt".
func pairToBinanceSymbol(pair string) string {
	return strings.ToLower(strings.ReplaceAll(pair, "_", ""))
}

// pairToDashSymbol maps "BTC_USDT" to "BTC-USD", Coinbase's product ID
// convention (USDT quotes trade against the USD product).
func pairToDashSymbol(pair string) string {
	return normalizeQuoteUSD(pair, "-")
}

// pairToSlashSymbol maps "BTC_USDT" to "BTC/USD", Kraken's symbol
// convention.
func pairToSlashSymbol(pair string) string {
	return normalizeQuoteUSD(pair, "/")
}

func normalizeQuoteUSD(pair, sep string) string {
	parts := strings.SplitN(pair, "_", 2)
	base := parts[0]
	quote := "USD"
	if len(parts) == 2 {
		quote = parts[1]
		if quote == "USDT" || quote == "USDC" {
			quote = "USD"
		}
	}
	return base + sep + quote
}

// wireTrade is the exchange-agnostic price update every session hands to
// the feed after decoding its own wire format.
type wireTrade struct {
	Pair      string
	Price     decimal.Decimal
	ChangePct decimal.Decimal
}

// wireBinanceTicker declares the lowercase "e" and "p" keys as well, so
// encoding/json's case-insensitive matching does not route them into the
// "E" and "P" fields.
type wireBinanceTicker struct {
	EventType   string `json:"e"`
	Symbol      string `json:"s"`
	Price       string `json:"c"`
	PriceChange string `json:"p"`
	ChangePct   string `json:"P"`
	EventTimeMs int64  `json:"E"`
}

type wireCoinbaseTicker struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	ChangePct string `json:"price_percent_chg_24_h"`
}

type wireKrakenTickerItem struct {
	Symbol    string      `json:"symbol"`
	Last      json.Number `json:"last"`
	ChangePct json.Number `json:"change_pct"`
}

type wireKrakenMessage struct {
	Channel string                 `json:"channel"`
	Data    []wireKrakenTickerItem `json:"data"`
}

// cryptoSession is one long-lived WS connection to a single exchange,
// tracking the last price seen per pair.
type cryptoSession struct {
	exchange string
	kind     exchangeKind
	url      string
	pairs    []string
	logger   *slog.Logger

	symbolToPair map[string]string // reverse lookup built from pairs
	pingInterval time.Duration     // cryptoPingInterval when not positive

	onTrade func(exchange string, t wireTrade)

	connMu sync.Mutex
	conn   *websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}
}

func newCryptoSession(exchange, url string, pairs []string, logger *slog.Logger, onTrade func(string, wireTrade)) *cryptoSession {
	s := &cryptoSession{
		exchange:     exchange,
		kind:         kindOf(exchange),
		url:          url,
		pairs:        pairs,
		logger:       logger,
		onTrade:      onTrade,
		symbolToPair: make(map[string]string, len(pairs)),
	}
	for _, p := range pairs {
		switch s.kind {
		case exchangeBinance:
			s.symbolToPair[strings.ToUpper(pairToBinanceSymbol(p))] = p
		case exchangeCoinbase:
			s.symbolToPair[pairToDashSymbol(p)] = p
		case exchangeKraken:
			s.symbolToPair[pairToSlashSymbol(p)] = p
		default:
			s.symbolToPair[p] = p
		}
	}
	return s
}

func (s *cryptoSession) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

func (s *cryptoSession) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()
	if s.done != nil {
		<-s.done
	}
}

func (s *cryptoSession) run(ctx context.Context) {
	backoff := time.Second
	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("crypto session disconnected, reconnecting", "exchange", s.exchange, "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > cryptoMaxReconnectWait {
			backoff = cryptoMaxReconnectWait
		}
	}
}

func (s *cryptoSession) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return types.NewFeedConnectionError(types.FeedCrypto, "connect", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	conn.SetWriteDeadline(time.Now().Add(cryptoWriteTimeout))
	if err := conn.WriteJSON(s.subscribeFrame()); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(cryptoReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.handleMessage(msg)
	}
}

// subscribeFrame builds the exchange-specific subscribe request. Binance,
// Coinbase, and Kraken v2 each have their own shape; an unrecognized
// exchange name falls back to a generic frame carrying the pairs as-is.
func (s *cryptoSession) subscribeFrame() any {
	switch s.kind {
	case exchangeBinance:
		params := make([]string, len(s.pairs))
		for i, p := range s.pairs {
			params[i] = pairToBinanceSymbol(p) + "@ticker"
		}
		return map[string]any{"method": "SUBSCRIBE", "params": params, "id": 1}
	case exchangeCoinbase:
		products := make([]string, len(s.pairs))
		for i, p := range s.pairs {
			products[i] = pairToDashSymbol(p)
		}
		return map[string]any{"type": "subscribe", "product_ids": products, "channel": "ticker"}
	case exchangeKraken:
		symbols := make([]string, len(s.pairs))
		for i, p := range s.pairs {
			symbols[i] = pairToSlashSymbol(p)
		}
		return map[string]any{"method": "subscribe", "params": map[string]any{"channel": "ticker", "symbol": symbols}}
	default:
		return map[string]any{"type": "subscribe", "pairs": s.pairs}
	}
}

func (s *cryptoSession) handleMessage(data []byte) {
	var trade wireTrade
	var ok bool
	switch s.kind {
	case exchangeBinance:
		trade, ok = s.parseBinance(data)
	case exchangeCoinbase:
		trade, ok = s.parseCoinbase(data)
	case exchangeKraken:
		trade, ok = s.parseKraken(data)
	default:
		trade, ok = s.parseGeneric(data)
	}
	if !ok {
		return
	}
	s.onTrade(s.exchange, trade)
}

func (s *cryptoSession) parseBinance(data []byte) (wireTrade, bool) {
	var wire wireBinanceTicker
	if err := json.Unmarshal(data, &wire); err != nil || wire.Symbol == "" {
		return wireTrade{}, false
	}
	pair, ok := s.symbolToPair[strings.ToUpper(wire.Symbol)]
	if !ok {
		return wireTrade{}, false
	}
	price, err := decimal.NewFromString(wire.Price)
	if err != nil {
		return wireTrade{}, false
	}
	changePct, _ := decimal.NewFromString(wire.ChangePct)
	return wireTrade{Pair: pair, Price: price, ChangePct: changePct}, true
}

func (s *cryptoSession) parseCoinbase(data []byte) (wireTrade, bool) {
	var wire wireCoinbaseTicker
	if err := json.Unmarshal(data, &wire); err != nil || wire.Type != "ticker" {
		return wireTrade{}, false
	}
	pair, ok := s.symbolToPair[wire.ProductID]
	if !ok {
		return wireTrade{}, false
	}
	price, err := decimal.NewFromString(wire.Price)
	if err != nil {
		return wireTrade{}, false
	}
	changePct, _ := decimal.NewFromString(wire.ChangePct)
	return wireTrade{Pair: pair, Price: price, ChangePct: changePct}, true
}

func (s *cryptoSession) parseKraken(data []byte) (wireTrade, bool) {
	var wire wireKrakenMessage
	if err := json.Unmarshal(data, &wire); err != nil || wire.Channel != "ticker" || len(wire.Data) == 0 {
		return wireTrade{}, false
	}
	item := wire.Data[0]
	pair, ok := s.symbolToPair[item.Symbol]
	if !ok {
		return wireTrade{}, false
	}
	price, err := decimal.NewFromString(item.Last.String())
	if err != nil {
		return wireTrade{}, false
	}
	changePct, _ := decimal.NewFromString(item.ChangePct.String())
	return wireTrade{Pair: pair, Price: price, ChangePct: changePct}, true
}

func (s *cryptoSession) parseGeneric(data []byte) (wireTrade, bool) {
	var wire struct {
		Pair  string `json:"pair"`
		Price string `json:"price"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return wireTrade{}, false
	}
	price, err := decimal.NewFromString(wire.Price)
	if err != nil {
		return wireTrade{}, false
	}
	return wireTrade{Pair: wire.Pair, Price: price}, true
}

func (s *cryptoSession) pingLoop(ctx context.Context) {
	interval := s.pingInterval
	if interval <= 0 {
		interval = cryptoPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(cryptoWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// CryptoFeed watches live prices across a primary exchange and one or more
// validators, emitting DATA_RELEASED when the primary's price moves past a
// threshold from its last reported baseline. Cross-validation against the
// other exchanges never gates emission — it is carried in the event's
// metadata so downstream matching can weigh confidence accordingly.
//
// Unlike the economic and sports feeds, crypto is event-driven: each
// exchange gets its own long-lived WS session, and the inherited *base poll
// loop only drives the periodic cross-validation check rather than fetching
// data itself. Start/Stop are overridden to additionally manage the
// sessions' lifecycle around the base loop.
type CryptoFeed struct {
	*base

	cfg      config.CryptoFeedConfig
	primary  string
	sessions map[string]*cryptoSession

	mu        sync.Mutex
	latest    map[string]map[string]decimal.Decimal // exchange -> pair -> price
	baselines map[string]decimal.Decimal             // pair -> baseline price

	sessionCancel context.CancelFunc
}

// NewCryptoFeed builds a feed with one session per configured exchange.
func NewCryptoFeed(cfg config.CryptoFeedConfig, logger *slog.Logger) *CryptoFeed {
	f := &CryptoFeed{
		cfg:       cfg,
		sessions:  make(map[string]*cryptoSession),
		latest:    make(map[string]map[string]decimal.Decimal),
		baselines: make(map[string]decimal.Decimal),
	}
	sessionLogger := logger.With("component", "feed", "feed_type", types.FeedCrypto)
	for _, ex := range cfg.Exchanges {
		if ex.Primary {
			f.primary = ex.Name
		}
		s := newCryptoSession(ex.Name, ex.WSURL, cfg.Pairs, sessionLogger, f.recordTrade)
		s.pingInterval = cfg.PingInterval
		f.sessions[ex.Name] = s
	}
	interval := cfg.CrossValidateInterval
	if interval <= 0 {
		interval = time.Second
	}
	f.base = newBase(types.FeedCrypto, interval, logger, f.poll)
	return f
}

// poll is the base loop's pollFunc: it runs the cross-validation check,
// which emits any DATA_RELEASED events itself. The actual price feed comes
// from the per-exchange sessions, started separately in Start.
func (f *CryptoFeed) poll(ctx context.Context) ([]types.FeedEvent, error) {
	f.checkMoves()
	return nil, nil
}

// Start launches every exchange session, then the inherited poll loop that
// drives the periodic cross-validation check.
func (f *CryptoFeed) Start(ctx context.Context) error {
	if f.Running() {
		return nil
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	f.sessionCancel = cancel
	for _, s := range f.sessions {
		s.start(sessionCtx)
	}
	return f.base.Start(ctx)
}

// Stop tears down every exchange session and the cross-validation loop.
func (f *CryptoFeed) Stop() {
	if !f.Running() {
		return
	}
	if f.sessionCancel != nil {
		f.sessionCancel()
	}
	for _, s := range f.sessions {
		s.stop()
	}
	f.base.Stop()
}

func (f *CryptoFeed) recordTrade(exchange string, t wireTrade) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest[exchange] == nil {
		f.latest[exchange] = make(map[string]decimal.Decimal)
	}
	f.latest[exchange][t.Pair] = t.Price
	if _, ok := f.baselines[t.Pair]; !ok {
		f.baselines[t.Pair] = t.Price
	}
}

// checkMoves compares the primary exchange's current price against its
// baseline for each pair. A move past the threshold always emits
// DATA_RELEASED and resets the baseline — cross-validation against the
// other exchanges is computed and carried as metadata only, never used to
// suppress the event.
func (f *CryptoFeed) checkMoves() {
	f.mu.Lock()
	defer f.mu.Unlock()

	primaryPrices, ok := f.latest[f.primary]
	if !ok {
		return
	}
	for _, pair := range f.cfg.Pairs {
		current, ok := primaryPrices[pair]
		if !ok {
			continue
		}
		baseline, ok := f.baselines[pair]
		if !ok || baseline.IsZero() {
			f.baselines[pair] = current
			continue
		}

		movePct := current.Sub(baseline).Div(baseline).Abs().Mul(decimal.NewFromInt(100))
		threshold := decimal.NewFromFloat(f.cfg.PriceMoveThresholdPct)
		if movePct.LessThan(threshold) {
			continue
		}

		validated := f.crossValidatesLocked(pair, current)

		now := time.Now()
		f.emit(types.FeedEvent{
			FeedType:     types.FeedCrypto,
			EventType:    types.DataReleased,
			Indicator:    fmt.Sprintf("%s_PRICE", pair),
			Value:        current.String(),
			NumericValue: current,
			HasNumeric:   true,
			OutcomeType:  types.OutcomeNumeric,
			ReleasedAt:   now,
			ReceivedAt:   now,
			Metadata: map[string]any{
				"pair":      pair,
				"exchange":  f.primary,
				"baseline":  baseline.String(),
				"move_pct":  movePct.String(),
				"validated": validated,
			},
		})
		f.baselines[pair] = current
	}
}

// crossValidatesLocked reports whether every other exchange's price for
// pair is within the configured tolerance of candidate. Exchanges with no
// observed price for the pair are skipped (can't validate, can't refute).
// Returns true when there are no validators at all to check against.
func (f *CryptoFeed) crossValidatesLocked(pair string, candidate decimal.Decimal) bool {
	if f.cfg.ValidationThresholdPct <= 0 {
		return true
	}
	tolerance := decimal.NewFromFloat(f.cfg.ValidationThresholdPct)
	for exchange, prices := range f.latest {
		if exchange == f.primary {
			continue
		}
		price, ok := prices[pair]
		if !ok {
			continue
		}
		diffPct := candidate.Sub(price).Div(price).Abs().Mul(decimal.NewFromInt(100))
		if diffPct.GreaterThan(tolerance) {
			return false
		}
	}
	return true
}
