package types

import "fmt"

// FeedError is the root of the feed-runtime error family.
type FeedError struct {
	FeedType FeedType
	Op       string
	Err      error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed[%s] %s: %v", e.FeedType, e.Op, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// FeedConnectionError indicates a transport-level failure reaching a feed endpoint.
type FeedConnectionError struct{ *FeedError }

// FeedParseError indicates a feed response could not be decoded.
type FeedParseError struct{ *FeedError }

// FeedRateLimitError indicates the feed endpoint rejected a request for rate limiting.
type FeedRateLimitError struct{ *FeedError }

func NewFeedConnectionError(ft FeedType, op string, err error) *FeedConnectionError {
	return &FeedConnectionError{&FeedError{FeedType: ft, Op: op, Err: err}}
}

func NewFeedParseError(ft FeedType, op string, err error) *FeedParseError {
	return &FeedParseError{&FeedError{FeedType: ft, Op: op, Err: err}}
}

func NewFeedRateLimitError(ft FeedType, op string, err error) *FeedRateLimitError {
	return &FeedRateLimitError{&FeedError{FeedType: ft, Op: op, Err: err}}
}

// ClobClientError is the root of the execution-adapter error family.
type ClobClientError struct {
	Op  string
	Err error
}

func (e *ClobClientError) Error() string {
	return fmt.Sprintf("clob %s: %v", e.Op, e.Err)
}

func (e *ClobClientError) Unwrap() error { return e.Err }

type ClobConnectionError struct{ *ClobClientError }
type ClobRateLimitError struct{ *ClobClientError }
type ClobOrderError struct{ *ClobClientError }
type ClobWebSocketError struct{ *ClobClientError }

func NewClobConnectionError(op string, err error) *ClobConnectionError {
	return &ClobConnectionError{&ClobClientError{Op: op, Err: err}}
}

func NewClobRateLimitError(op string, err error) *ClobRateLimitError {
	return &ClobRateLimitError{&ClobClientError{Op: op, Err: err}}
}

func NewClobOrderError(op string, err error) *ClobOrderError {
	return &ClobOrderError{&ClobClientError{Op: op, Err: err}}
}

func NewClobWebSocketError(op string, err error) *ClobWebSocketError {
	return &ClobWebSocketError{&ClobClientError{Op: op, Err: err}}
}

// RiskError is the root of the risk-subsystem error family.
type RiskError struct {
	Reason string
	Err    error
}

func (e *RiskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("risk: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("risk: %s", e.Reason)
}

func (e *RiskError) Unwrap() error { return e.Err }

type RiskLimitBreachedError struct{ *RiskError }
type KillSwitchActiveError struct{ *RiskError }
type OracleRiskError struct{ *RiskError }

func NewRiskLimitBreachedError(reason string) *RiskLimitBreachedError {
	return &RiskLimitBreachedError{&RiskError{Reason: reason}}
}

func NewKillSwitchActiveError(reason string) *KillSwitchActiveError {
	return &KillSwitchActiveError{&RiskError{Reason: reason}}
}

func NewOracleRiskError(reason string, err error) *OracleRiskError {
	return &OracleRiskError{&RiskError{Reason: reason, Err: err}}
}

// StrategyError is the root of the arbitrage-pipeline error family.
type StrategyError struct {
	Stage string
	Err   error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy[%s]: %v", e.Stage, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

type MatchError struct{ *StrategyError }
type SignalError struct{ *StrategyError }
type SizingError struct{ *StrategyError }
type PrioritizationError struct{ *StrategyError }
type ExecutionError struct{ *StrategyError }

func NewMatchError(err error) *MatchError {
	return &MatchError{&StrategyError{Stage: "match", Err: err}}
}

func NewSignalError(err error) *SignalError {
	return &SignalError{&StrategyError{Stage: "signal", Err: err}}
}

func NewSizingError(err error) *SizingError {
	return &SizingError{&StrategyError{Stage: "sizing", Err: err}}
}

func NewPrioritizationError(err error) *PrioritizationError {
	return &PrioritizationError{&StrategyError{Stage: "prioritization", Err: err}}
}

func NewExecutionError(err error) *ExecutionError {
	return &ExecutionError{&StrategyError{Stage: "execution", Err: err}}
}
