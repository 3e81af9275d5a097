// Package market implements the opportunity scanner: periodic discovery,
// filtering, scoring, and lifecycle tracking of tradeable markets with
// attached live book subscriptions.
package market

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// Client is the subset of the execution adapter the scanner needs.
type Client interface {
	GetAllMarkets(ctx context.Context, maxPages int) ([]types.MarketInfo, error)
	GetOrderBooks(ctx context.Context, tokenIDs []string, batchSize int) (map[string]*types.OrderBook, error)
	SubscribeOrderBook(ctx context.Context, tokenID string, callback func(*types.OrderBook)) error
	UnsubscribeOrderBook(tokenID string)
}

// tagCategories maps a lowercase tag to the category it implies. First hit wins.
var tagCategories = map[string]types.Category{
	"economics": types.CategoryEconomic,
	"economy":   types.CategoryEconomic,
	"inflation": types.CategoryEconomic,
	"fed":       types.CategoryEconomic,
	"cpi":       types.CategoryEconomic,
	"jobs":      types.CategoryEconomic,
	"sports":    types.CategorySports,
	"nfl":       types.CategorySports,
	"nba":       types.CategorySports,
	"mlb":       types.CategorySports,
	"nhl":       types.CategorySports,
	"soccer":    types.CategorySports,
	"crypto":    types.CategoryCrypto,
	"bitcoin":   types.CategoryCrypto,
	"ethereum":  types.CategoryCrypto,
	"politics":  types.CategoryPolitics,
	"election":  types.CategoryPolitics,
}

// keywordHints is an ordered list of question-text substrings tried when no
// tag matched. First hit wins.
var keywordHints = []struct {
	keyword  string
	category types.Category
}{
	{"cpi", types.CategoryEconomic},
	{"inflation", types.CategoryEconomic},
	{"unemployment", types.CategoryEconomic},
	{"gdp", types.CategoryEconomic},
	{"fed", types.CategoryEconomic},
	{"interest rate", types.CategoryEconomic},
	{"win", types.CategorySports},
	{"game", types.CategorySports},
	{"beat", types.CategorySports},
	{"championship", types.CategorySports},
	{"super bowl", types.CategorySports},
	{"bitcoin", types.CategoryCrypto},
	{"btc", types.CategoryCrypto},
	{"ethereum", types.CategoryCrypto},
	{"eth", types.CategoryCrypto},
	{"crypto", types.CategoryCrypto},
	{"president", types.CategoryPolitics},
	{"election", types.CategoryPolitics},
	{"senate", types.CategoryPolitics},
	{"congress", types.CategoryPolitics},
}

// Classify assigns a Category to a market: tags first, then question keywords,
// else OTHER.
func Classify(m types.MarketInfo) types.Category {
	for _, tag := range m.Tags {
		if cat, ok := tagCategories[strings.ToLower(tag)]; ok {
			return cat
		}
	}
	q := strings.ToLower(m.Question)
	for _, hint := range keywordHints {
		if strings.Contains(q, hint.keyword) {
			return hint.category
		}
	}
	return types.CategoryOther
}

// Scanner periodically discovers, filters, scores, and tracks opportunities,
// publishing lifecycle events (OPPORTUNITY_FOUND/UPDATED/LOST) to listeners.
type Scanner struct {
	client Client
	cfg    config.ScannerConfig
	logger *slog.Logger

	mu            sync.RWMutex
	opportunities map[string]types.MarketOpportunity

	listenersMu sync.Mutex
	listeners   []func(types.OpportunityEvent)

	questionPatterns []*regexp.Regexp

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScanner builds a Scanner wired to client with the given config.
func NewScanner(client Client, cfg config.ScannerConfig, logger *slog.Logger) *Scanner {
	var patterns []*regexp.Regexp
	for _, p := range cfg.Filter.QuestionPatterns {
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		}
	}
	return &Scanner{
		client:           client,
		cfg:              cfg,
		logger:           logger.With("component", "scanner"),
		opportunities:    make(map[string]types.MarketOpportunity),
		questionPatterns: patterns,
	}
}

// OnEvent registers a lifecycle listener. Not safe to call concurrently with Start.
func (s *Scanner) OnEvent(cb func(types.OpportunityEvent)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, cb)
}

func (s *Scanner) emit(evt types.OpportunityEvent) {
	evt.Timestamp = time.Now()
	s.listenersMu.Lock()
	cbs := append([]func(types.OpportunityEvent){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("scanner listener panic", "panic", r)
				}
			}()
			cb(evt)
		}()
	}
}

// Opportunities returns a read-only snapshot of the currently tracked map.
func (s *Scanner) Opportunities() map[string]types.MarketOpportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.MarketOpportunity, len(s.opportunities))
	for k, v := range s.opportunities {
		out[k] = v
	}
	return out
}

// Start launches the background scan loop on cfg.PollInterval.
func (s *Scanner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.ScanOnce(ctx)
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ScanOnce(ctx)
			}
		}
	}()
}

// Stop cancels the scan loop and waits for it to exit.
func (s *Scanner) Stop() {
	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// ScanOnce runs a single scan pass: fetch → filter → book → liquidity screen
// → classify/score → reconcile. Returns the current opportunities sorted by
// score descending. Fetch failures leave the tracked map untouched.
func (s *Scanner) ScanOnce(ctx context.Context) []types.MarketOpportunity {
	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}
	markets, err := s.client.GetAllMarkets(ctx, maxPages)
	if err != nil {
		s.logger.Error("scan: fetch markets failed", "error", err)
		return s.sortedSnapshot()
	}

	filtered := s.filter(markets)

	tokenToMarket := make(map[string]types.MarketInfo, len(filtered))
	var repTokens []string
	for _, m := range filtered {
		if len(m.Tokens) == 0 {
			continue
		}
		rep := m.Tokens[0].TokenID
		tokenToMarket[rep] = m
		repTokens = append(repTokens, rep)
	}

	batchSize := s.cfg.BookBatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	books, err := s.client.GetOrderBooks(ctx, repTokens, batchSize)
	if err != nil {
		s.logger.Warn("scan: book batch error", "error", err)
	}

	now := time.Now()
	newMap := make(map[string]types.MarketOpportunity)
	for tokenID, m := range tokenToMarket {
		book, ok := books[tokenID]
		if !ok {
			continue
		}
		if !s.passesLiquidity(*book) {
			continue
		}
		opp := buildOpportunity(m, *book, now)
		newMap[opp.ConditionID] = opp
	}

	s.reconcile(newMap)

	return s.sortedSnapshot()
}

func (s *Scanner) sortedSnapshot() []types.MarketOpportunity {
	s.mu.RLock()
	out := make([]types.MarketOpportunity, 0, len(s.opportunities))
	for _, o := range s.opportunities {
		out = append(out, o)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Score.GreaterThan(out[j].Score) })
	return out
}

func (s *Scanner) passesLiquidity(book types.OrderBook) bool {
	l := s.cfg.Liquidity
	if l.MinDepthUSD > 0 && book.DepthUSD().LessThan(decimal.NewFromFloat(l.MinDepthUSD)) {
		return false
	}
	if l.MaxSpread > 0 {
		if spread, ok := book.Spread(); ok && spread.GreaterThan(decimal.NewFromFloat(l.MaxSpread)) {
			return false
		}
	}
	if l.MinBidDepthUSD > 0 && book.BidDepthUSD().LessThan(decimal.NewFromFloat(l.MinBidDepthUSD)) {
		return false
	}
	if l.MinAskDepthUSD > 0 && book.AskDepthUSD().LessThan(decimal.NewFromFloat(l.MinAskDepthUSD)) {
		return false
	}
	return true
}

// filter applies the ScanFilter: active-required, not-closed, category
// allow-list, tag allow/deny lists, question regex patterns, expiry window.
func (s *Scanner) filter(markets []types.MarketInfo) []types.MarketInfo {
	f := s.cfg.Filter
	allowCats := make(map[string]bool, len(f.AllowCategories))
	for _, c := range f.AllowCategories {
		allowCats[strings.ToUpper(c)] = true
	}
	tagAllow := make(map[string]bool, len(f.TagAllowList))
	for _, t := range f.TagAllowList {
		tagAllow[strings.ToLower(t)] = true
	}
	tagDeny := make(map[string]bool, len(f.TagDenyList))
	for _, t := range f.TagDenyList {
		tagDeny[strings.ToLower(t)] = true
	}

	now := time.Now()
	var out []types.MarketInfo
	for _, m := range markets {
		if f.RequireActive && !m.Active {
			continue
		}
		if f.ExcludeClosed && m.Closed {
			continue
		}
		if m.Flagged {
			continue
		}
		if len(allowCats) > 0 {
			cat := Classify(m)
			if !allowCats[string(cat)] {
				continue
			}
		}
		if len(tagAllow) > 0 {
			matched := false
			for _, t := range m.Tags {
				if tagAllow[strings.ToLower(t)] {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if len(tagDeny) > 0 {
			denied := false
			for _, t := range m.Tags {
				if tagDeny[strings.ToLower(t)] {
					denied = true
					break
				}
			}
			if denied {
				continue
			}
		}
		if len(s.questionPatterns) > 0 {
			matched := false
			for _, re := range s.questionPatterns {
				if re.MatchString(m.Question) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if !m.EndDate.IsZero() && (f.MinHoursToExpiry > 0 || f.MaxHoursToExpiry > 0) {
			hours := m.EndDate.Sub(now).Hours()
			if f.MinHoursToExpiry > 0 && hours < f.MinHoursToExpiry {
				continue
			}
			if f.MaxHoursToExpiry > 0 && hours > f.MaxHoursToExpiry {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func buildOpportunity(m types.MarketInfo, book types.OrderBook, now time.Time) types.MarketOpportunity {
	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()
	spread, hasSpread := book.Spread()

	opp := types.MarketOpportunity{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Category:    Classify(m),
		Tokens:      m.Tokens,
		TokenID:     book.TokenID,
		BestBid:     bid,
		BestAsk:     ask,
		Spread:      spread,
		HasSpread:   hasSpread,
		DepthUSD:    book.DepthUSD(),
		BidDepthUSD: book.BidDepthUSD(),
		AskDepthUSD: book.AskDepthUSD(),
		FirstSeen:   now,
		LastUpdated: now,
		FeeRateBps:  m.FeeRateBps,
		Market:      m,
	}
	opp.Score = Score(opp, now)
	return opp
}

// Score computes the composite opportunity score in [0,1]: depth (linear,
// capped at 10,000 USD), spread (1 - spread*10 clamped at 0), and recency
// (markets within a week score higher; no-expiry markets are neutral 0.5).
func Score(opp types.MarketOpportunity, now time.Time) decimal.Decimal {
	depthComponent := opp.DepthUSD.Div(decimal.NewFromInt(10000))
	if depthComponent.GreaterThan(decimal.NewFromInt(1)) {
		depthComponent = decimal.NewFromInt(1)
	}

	spreadComponent := decimal.NewFromInt(1)
	if opp.HasSpread {
		spreadComponent = decimal.NewFromInt(1).Sub(opp.Spread.Mul(decimal.NewFromInt(10)))
		if spreadComponent.LessThan(decimal.Zero) {
			spreadComponent = decimal.Zero
		}
	}

	recencyComponent := decimal.NewFromFloat(0.5)
	if !opp.Market.EndDate.IsZero() {
		hours := opp.Market.EndDate.Sub(now).Hours()
		recencyComponent = recencyFromHours(hours)
	}

	weighted := depthComponent.Mul(decimal.NewFromFloat(1.0 / 3)).
		Add(spreadComponent.Mul(decimal.NewFromFloat(1.0 / 3))).
		Add(recencyComponent.Mul(decimal.NewFromFloat(1.0 / 3)))

	if weighted.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if weighted.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return weighted
}

func recencyFromHours(hours float64) decimal.Decimal {
	const weekHours = 7 * 24.0
	if hours <= 0 {
		return decimal.Zero
	}
	if hours >= weekHours {
		return decimal.NewFromFloat(0.5)
	}
	// Linear ramp from 1.0 (imminent) down to 0.5 (a week out).
	frac := 1.0 - 0.5*math.Min(hours/weekHours, 1.0)
	return decimal.NewFromFloat(frac)
}

// reconcile diffs newMap against the tracked set, preserving FirstSeen for
// surviving entries, emitting lifecycle events, and managing book
// subscriptions. newMap is mutated in place to adopt preserved FirstSeen.
func (s *Scanner) reconcile(newMap map[string]types.MarketOpportunity) {
	s.mu.Lock()
	old := s.opportunities
	s.mu.Unlock()

	for id, opp := range newMap {
		if prev, existed := old[id]; existed {
			opp.FirstSeen = prev.FirstSeen
			newMap[id] = opp
			s.emit(types.OpportunityEvent{Type: types.EvtOpportunityUpdated, Opportunity: opp})
		} else {
			s.emit(types.OpportunityEvent{Type: types.EvtOpportunityFound, Opportunity: opp})
			if s.client != nil {
				tokenID := opp.TokenID
				s.client.SubscribeOrderBook(context.Background(), tokenID, s.makeBookCallback(id, tokenID))
			}
		}
	}
	for id, opp := range old {
		if _, stillTracked := newMap[id]; !stillTracked {
			s.emit(types.OpportunityEvent{Type: types.EvtOpportunityLost, Opportunity: opp})
			if s.client != nil {
				s.client.UnsubscribeOrderBook(opp.TokenID)
			}
		}
	}

	// Truncate to max_tracked by score.
	ranked := make([]types.MarketOpportunity, 0, len(newMap))
	for _, o := range newMap {
		ranked = append(ranked, o)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score.GreaterThan(ranked[j].Score) })
	if s.cfg.MaxTracked > 0 && len(ranked) > s.cfg.MaxTracked {
		dropped := ranked[s.cfg.MaxTracked:]
		ranked = ranked[:s.cfg.MaxTracked]
		for _, o := range dropped {
			delete(newMap, o.ConditionID)
			s.emit(types.OpportunityEvent{Type: types.EvtOpportunityLost, Opportunity: o})
			if s.client != nil {
				s.client.UnsubscribeOrderBook(o.TokenID)
			}
		}
	}

	s.mu.Lock()
	s.opportunities = newMap
	s.mu.Unlock()
}

// makeBookCallback builds the WS callback for a tracked token: re-screens
// liquidity on every push and evicts immediately on failure, otherwise
// updates prices/depth/spread/last_updated and rescores.
func (s *Scanner) makeBookCallback(conditionID, tokenID string) func(*types.OrderBook) {
	return func(book *types.OrderBook) {
		if book == nil {
			return
		}
		if !s.passesLiquidity(*book) {
			s.mu.Lock()
			opp, ok := s.opportunities[conditionID]
			if ok {
				delete(s.opportunities, conditionID)
			}
			s.mu.Unlock()
			if ok {
				s.emit(types.OpportunityEvent{Type: types.EvtOpportunityLost, Opportunity: opp})
				s.client.UnsubscribeOrderBook(tokenID)
			}
			return
		}

		s.mu.Lock()
		opp, ok := s.opportunities[conditionID]
		if !ok {
			s.mu.Unlock()
			return
		}
		bid, _ := book.BestBid()
		ask, _ := book.BestAsk()
		spread, hasSpread := book.Spread()
		opp.BestBid = bid
		opp.BestAsk = ask
		opp.Spread = spread
		opp.HasSpread = hasSpread
		opp.DepthUSD = book.DepthUSD()
		opp.BidDepthUSD = book.BidDepthUSD()
		opp.AskDepthUSD = book.AskDepthUSD()
		opp.LastUpdated = time.Now()
		opp.Score = Score(opp, opp.LastUpdated)
		s.opportunities[conditionID] = opp
		s.mu.Unlock()

		s.emit(types.OpportunityEvent{Type: types.EvtOpportunityUpdated, Opportunity: opp})
	}
}
