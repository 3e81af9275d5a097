// Package types defines the shared vocabulary of the arbitrage engine: the
// order book, market, and feed-event shapes that flow leaf-to-root through
// feeds → scanner → engine → risk → alerts/metrics. It has no dependency on
// any other internal package so any layer can import it.
//
// Every monetary value, price, size, and threshold is a decimal.Decimal.
// Binary floats are never used for money; conversions happen only at the
// I/O boundary (JSON marshal/unmarshal of venue payloads).
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of a trade or order.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OrderType enumerates the order lifecycles the engine can request.
type OrderType string

const (
	OrderTypeFOK OrderType = "FOK" // fill-or-kill (default)
	OrderTypeGTC OrderType = "GTC" // good-til-cancelled
)

// TickSize is the price granularity of a market.
type TickSize string

const (
	Tick01    TickSize = "0.1"
	Tick001   TickSize = "0.01"
	Tick0001  TickSize = "0.001"
	Tick00001 TickSize = "0.0001"
)

// Decimal returns the tick size as a decimal.Decimal increment.
func (t TickSize) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(string(t))
	if err != nil {
		return decimal.New(1, -2) // 0.01 fallback
	}
	return d
}

// Decimals returns the number of decimal places for a tick size.
func (t TickSize) Decimals() int {
	switch t {
	case Tick01:
		return 1
	case Tick001:
		return 2
	case Tick0001:
		return 3
	case Tick00001:
		return 4
	default:
		return 2
	}
}

// AmountDecimals returns the rounding precision for USDC amounts used when
// converting a signed order's price/size into on-chain maker/taker amounts.
func (t TickSize) AmountDecimals() int {
	switch t {
	case Tick01:
		return 3
	case Tick001:
		return 4
	case Tick0001:
		return 5
	case Tick00001:
		return 6
	default:
		return 4
	}
}

// SignatureType identifies the signing scheme for the CTF exchange contract.
type SignatureType int

const (
	SigEOA        SignatureType = 0 // externally-owned account (standard wallet)
	SigProxy      SignatureType = 1 // Polymarket-style proxy / Magic wallet
	SigGnosisSafe SignatureType = 2 // Gnosis Safe multisig
)

// WSAuth carries the L2 API credentials used to authenticate a user
// WebSocket channel subscription.
type WSAuth struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// FeedType identifies which ground-truth source produced a FeedEvent.
type FeedType string

const (
	FeedEconomic FeedType = "ECONOMIC"
	FeedSports   FeedType = "SPORTS"
	FeedCrypto   FeedType = "CRYPTO"
)

// FeedEventType enumerates the lifecycle/data events a feed can emit.
type FeedEventType string

const (
	DataReleased    FeedEventType = "DATA_RELEASED"
	FeedConnected   FeedEventType = "FEED_CONNECTED"
	FeedDisconnected FeedEventType = "FEED_DISCONNECTED"
	FeedErrored     FeedEventType = "FEED_ERROR"
)

// OutcomeType describes how a feed's value should be interpreted.
type OutcomeType string

const (
	OutcomeNumeric     OutcomeType = "NUMERIC"
	OutcomeBoolean     OutcomeType = "BOOLEAN"
	OutcomeCategorical OutcomeType = "CATEGORICAL"
)

// Category classifies a market's subject matter.
type Category string

const (
	CategoryEconomic Category = "ECONOMIC"
	CategorySports   Category = "SPORTS"
	CategoryCrypto   Category = "CRYPTO"
	CategoryPolitics Category = "POLITICS"
	CategoryOther    Category = "OTHER"
)

// KillTrigger enumerates the reasons the kill switch can latch.
type KillTrigger string

const (
	TriggerConsecutiveLosses KillTrigger = "CONSECUTIVE_LOSSES"
	TriggerErrorRate         KillTrigger = "ERROR_RATE"
	TriggerConnectivity      KillTrigger = "CONNECTIVITY"
	TriggerDailyLoss         KillTrigger = "DAILY_LOSS"
	TriggerManual            KillTrigger = "MANUAL"
	TriggerDispute           KillTrigger = "DISPUTE"
	TriggerOracleBlacklist   KillTrigger = "ORACLE_BLACKLIST"
)

// OracleState is the resolution status of a condition as reported upstream.
type OracleState string

const (
	OracleProposed OracleState = "PROPOSED"
	OracleDisputed OracleState = "DISPUTED"
	OracleSettled  OracleState = "SETTLED"
)

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single resting price/size pair in an order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Notional returns price * size for this level.
func (l PriceLevel) Notional() decimal.Decimal {
	return l.Price.Mul(l.Size)
}

// OrderBook is a snapshot of one token's resting liquidity.
// Bids are ordered descending by price; Asks ascending.
type OrderBook struct {
	TokenID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid, or false if the book has no bids.
func (b OrderBook) BestBid() (decimal.Decimal, bool) {
	if len(b.Bids) == 0 {
		return decimal.Zero, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the lowest ask, or false if the book has no asks.
func (b OrderBook) BestAsk() (decimal.Decimal, bool) {
	if len(b.Asks) == 0 {
		return decimal.Zero, false
	}
	return b.Asks[0].Price, true
}

// Spread returns BestAsk - BestBid, or false if either side is empty.
func (b OrderBook) Spread() (decimal.Decimal, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// BidDepthUSD sums price*size across all bid levels.
func (b OrderBook) BidDepthUSD() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Bids {
		total = total.Add(l.Notional())
	}
	return total
}

// AskDepthUSD sums price*size across all ask levels.
func (b OrderBook) AskDepthUSD() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Asks {
		total = total.Add(l.Notional())
	}
	return total
}

// DepthUSD is the total two-sided depth of the book.
func (b OrderBook) DepthUSD() decimal.Decimal {
	return b.BidDepthUSD().Add(b.AskDepthUSD())
}

// ————————————————————————————————————————————————————————————————————————
// Market metadata
// ————————————————————————————————————————————————————————————————————————

// OutcomeToken names one side of a binary market.
type OutcomeToken struct {
	TokenID string
	Outcome string // e.g. "Yes" / "No"
}

// MarketInfo is the venue's description of a binary market.
type MarketInfo struct {
	ConditionID     string
	Question        string
	Tokens          []OutcomeToken
	Active          bool
	Closed          bool
	Flagged         bool
	AcceptingOrders bool
	EndDate         time.Time
	Tags            []string
	FeeRateBps      int
}

// TokenID returns the token ID whose outcome label matches outcome
// case-insensitively, and whether one was found.
func (m MarketInfo) TokenID(outcome string) (string, bool) {
	for _, t := range m.Tokens {
		if equalFold(t.Outcome, outcome) {
			return t.TokenID, true
		}
	}
	return "", false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// MarketOpportunity is a tracked market enriched with the latest book.
//
// Invariant: FirstSeen is preserved across rescans of the same ConditionID;
// LastUpdated advances on every mutation.
type MarketOpportunity struct {
	ConditionID    string
	Question       string
	Category       Category
	Tokens         []OutcomeToken
	TokenID        string // representative token (first token)
	BestBid        decimal.Decimal
	BestAsk        decimal.Decimal
	Spread         decimal.Decimal
	HasSpread      bool
	DepthUSD       decimal.Decimal
	BidDepthUSD    decimal.Decimal
	AskDepthUSD    decimal.Decimal
	Score          decimal.Decimal
	FirstSeen      time.Time
	LastUpdated    time.Time
	FeeRateBps     int
	Market         MarketInfo
}

// ————————————————————————————————————————————————————————————————————————
// Feed events
// ————————————————————————————————————————————————————————————————————————

// FeedEvent is the uniform event emitted by every feed.
type FeedEvent struct {
	FeedType     FeedType
	EventType    FeedEventType
	Indicator    string
	Value        string
	NumericValue decimal.Decimal
	HasNumeric   bool
	OutcomeType  OutcomeType
	ReleasedAt   time.Time
	ReceivedAt   time.Time
	Metadata     map[string]any
	Raw          map[string]any
}

// ————————————————————————————————————————————————————————————————————————
// Pipeline records — Match → Signal → TradeAction → ExecutionResult
// ————————————————————————————————————————————————————————————————————————

// Direction is the signal's recommended side, derived from fair value vs book.
type Direction string

const (
	DirBuy  Direction = "BUY"
	DirSell Direction = "SELL"
)

// MatchResult pairs a feed event with the opportunity it's believed to
// resolve, and the inferred target token.
//
// Invariant: TargetToken is always present in Opportunity.Tokens.
type MatchResult struct {
	Event         FeedEvent
	Opportunity   MarketOpportunity
	TargetToken   string
	TargetOutcome string
	Confidence    decimal.Decimal
}

// Signal is a fair-value assessment derived from a match.
type Signal struct {
	Match        MatchResult
	FairValue    decimal.Decimal
	Confidence   decimal.Decimal
	Direction    Direction
	Edge         decimal.Decimal
	CurrentPrice decimal.Decimal
}

// TradeAction is a sized, risk-unchecked trade candidate.
type TradeAction struct {
	Signal             Signal
	TokenID            string
	Side               Side
	Price              decimal.Decimal
	Size               decimal.Decimal // in tokens
	OrderType          OrderType
	MaxSlippage        decimal.Decimal
	EstimatedProfitUSD decimal.Decimal
	Reason             string
}

// ExecutionResult is the outcome of attempting to place a TradeAction.
type ExecutionResult struct {
	Action     TradeAction
	Success    bool
	FillPrice  decimal.Decimal
	FillSize   decimal.Decimal
	HasFill    bool
	ExecutedAt time.Time
	Error      string
}

// ————————————————————————————————————————————————————————————————————————
// Positions & P&L
// ————————————————————————————————————————————————————————————————————————

// Position is a held, open directional stake in one token.
//
// Invariants: Size > 0 while present; same-direction fills update the
// weighted average entry price; opposite-direction fills reduce it and the
// position is deleted at size zero.
type Position struct {
	TokenID     string
	ConditionID string
	Side        Side
	EntryPrice  decimal.Decimal
	Size        decimal.Decimal
	OpenedAt    time.Time
	LastUpdated time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Venue parameters & pre-signed orders
// ————————————————————————————————————————————————————————————————————————

// MarketParams are the per-token parameters needed to sign an order.
type MarketParams struct {
	TokenID    string
	TickSize   TickSize
	NegRisk    bool
	FeeRateBps int
	FetchedAt  time.Time
}

// IsStale reports whether these params are older than ttl.
func (p MarketParams) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.FetchedAt) > ttl
}

// OrderRequest describes a limit (GTC) order to sign and place.
type OrderRequest struct {
	TokenID        string
	Side           Side
	Price          decimal.Decimal
	Size           decimal.Decimal
	ExpirationSecs int64 // 0 disables expiry
}

// MarketOrderRequest describes a FOK market order with worst-acceptable price.
type MarketOrderRequest struct {
	TokenID     string
	Side        Side
	Size        decimal.Decimal
	WorstPrice  decimal.Decimal
	MaxSlippage decimal.Decimal
}

// PreSignedOrder is a signed, unposted order blob plus its signing context.
type PreSignedOrder struct {
	Key           string // normalized (tokenID, side, price)
	TokenID       string
	Side          Side
	Price         decimal.Decimal
	Size          decimal.Decimal
	OrderType     OrderType
	Params        MarketParams
	Blob          string // opaque signed payload
	CreatedAt     time.Time
	ExpirationTS  int64 // unix seconds, 0 = none
}

// IsExpired reports whether the order's on-venue expiration has passed.
func (o PreSignedOrder) IsExpired(now time.Time) bool {
	if o.ExpirationTS == 0 {
		return false
	}
	return now.Unix() >= o.ExpirationTS
}

// TimeUntilExpiry returns the duration remaining before expiry (0 if none set).
func (o PreSignedOrder) TimeUntilExpiry(now time.Time) time.Duration {
	if o.ExpirationTS == 0 {
		return 0
	}
	return time.Duration(o.ExpirationTS-now.Unix()) * time.Second
}

// IsStale reports whether time-until-expiry has fallen below threshold.
// An order with no expiration is never stale.
func (o PreSignedOrder) IsStale(now time.Time, threshold time.Duration) bool {
	if o.ExpirationTS == 0 {
		return false
	}
	return o.TimeUntilExpiry(now) < threshold
}

// AgeSecs returns how long ago the order was signed.
func (o PreSignedOrder) AgeSecs(now time.Time) float64 {
	return now.Sub(o.CreatedAt).Seconds()
}

// ————————————————————————————————————————————————————————————————————————
// Oracle / dispute
// ————————————————————————————————————————————————————————————————————————

// OracleProposal is the resolution state of one condition.
type OracleProposal struct {
	ConditionID     string
	State           OracleState
	Proposer        string
	Disputer        string
	ProposedOutcome string
	ProposedAt      time.Time
	DisputedAt      time.Time
	SettledAt       time.Time
}

// WhaleActivity is a large on-chain move by an operator-curated address.
type WhaleActivity struct {
	ConditionID string
	Address     string
	USDValue    decimal.Decimal
	Side        Side
	ObservedAt  time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Kill switch
// ————————————————————————————————————————————————————————————————————————

// KillSwitchState is the latched emergency-stop flag plus its derivation.
type KillSwitchState struct {
	Active      bool
	Trigger     KillTrigger
	TriggeredAt time.Time
	Reason      string
}

// ————————————————————————————————————————————————————————————————————————
// Engine / risk / feed event enums (for callback dispatch and alerting)
// ————————————————————————————————————————————————————————————————————————

// EngineEventType enumerates the pipeline-stage events the arb engine emits.
type EngineEventType string

const (
	EvtMatchFound       EngineEventType = "MATCH_FOUND"
	EvtSignalGenerated  EngineEventType = "SIGNAL_GENERATED"
	EvtTradeSized       EngineEventType = "TRADE_SIZED"
	EvtTradeExecuted    EngineEventType = "TRADE_EXECUTED"
	EvtTradeFailed      EngineEventType = "TRADE_FAILED"
	EvtTradeSkipped     EngineEventType = "TRADE_SKIPPED"
	EvtRiskRejected     EngineEventType = "RISK_REJECTED"
	EvtEngineStarted    EngineEventType = "ENGINE_STARTED"
	EvtEngineStopped    EngineEventType = "ENGINE_STOPPED"
)

// RiskEventType enumerates the events the risk subsystem emits.
type RiskEventType string

const (
	EvtPositionOpened      RiskEventType = "POSITION_OPENED"
	EvtPositionClosed      RiskEventType = "POSITION_CLOSED"
	EvtKillSwitchTriggered RiskEventType = "KILL_SWITCH_TRIGGERED"
	EvtKillSwitchReset     RiskEventType = "KILL_SWITCH_RESET"
	EvtDisputeDetected     RiskEventType = "DISPUTE_DETECTED"
	EvtWhaleActivity       RiskEventType = "WHALE_ACTIVITY"
	EvtHighOracleRisk      RiskEventType = "HIGH_ORACLE_RISK"
	EvtSettlement          RiskEventType = "SETTLEMENT"
)

// OpportunityEventType enumerates the scanner's lifecycle events.
type OpportunityEventType string

const (
	EvtOpportunityFound   OpportunityEventType = "OPPORTUNITY_FOUND"
	EvtOpportunityUpdated OpportunityEventType = "OPPORTUNITY_UPDATED"
	EvtOpportunityLost    OpportunityEventType = "OPPORTUNITY_LOST"
)

// EngineEvent is the typed payload delivered to arb-engine listeners.
type EngineEvent struct {
	Type      EngineEventType
	Match     *MatchResult
	Signal    *Signal
	Action    *TradeAction
	Result    *ExecutionResult
	Reason    string
	Timestamp time.Time
}

// RiskEvent is the typed payload delivered to risk-subsystem listeners.
type RiskEvent struct {
	Type        RiskEventType
	ConditionID string
	Position    *Position
	RealizedPnL decimal.Decimal
	Trigger     KillTrigger
	Reason      string
	Detail      map[string]any
	Timestamp   time.Time
}

// OpportunityEvent is the typed payload delivered to scanner listeners.
type OpportunityEvent struct {
	Type        OpportunityEventType
	Opportunity MarketOpportunity
	Timestamp   time.Time
}
