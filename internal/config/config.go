// Package config defines all configuration for the arbitrage engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via ARB_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	API       APIConfig       `mapstructure:"api"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Risk      RiskConfig      `mapstructure:"risk"`
	PreSign   PreSignConfig   `mapstructure:"pre_sign"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Paper     PaperConfig     `mapstructure:"paper"`
}

// PaperConfig tunes the paper-trading adapter's simulated fills and its
// background order-book refresh.
type PaperConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	FillProbability      float64 `mapstructure:"fill_probability"`
	SlippageBps          int64   `mapstructure:"slippage_bps"`
	OrderbookRefreshSecs int     `mapstructure:"orderbook_refresh_secs"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys.
// FunderAddress is the on-chain address that funds orders (may differ from signer if using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
}

// APIConfig holds the venue's endpoints and optional pre-derived L2 credentials.
// If ApiKey/Secret/Passphrase are empty, the adapter derives them via L1 auth on startup.
type APIConfig struct {
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	WSMarketURL  string `mapstructure:"ws_market_url"`
	WSUserURL    string `mapstructure:"ws_user_url"`
	ApiKey       string `mapstructure:"api_key"`
	Secret       string `mapstructure:"secret"`
	Passphrase   string `mapstructure:"passphrase"`
}

// RateLimitConfig configures the dual (burst + sustained) token-bucket
// limiter guarding every outbound venue call class.
type RateLimitConfig struct {
	OrderBurstPerSec      float64 `mapstructure:"order_burst_per_sec"`
	OrderSustainedPerSec  float64 `mapstructure:"order_sustained_per_sec"`
	CancelBurstPerSec     float64 `mapstructure:"cancel_burst_per_sec"`
	CancelSustainedPerSec float64 `mapstructure:"cancel_sustained_per_sec"`
	BookBurstPerSec       float64 `mapstructure:"book_burst_per_sec"`
	BookSustainedPerSec   float64 `mapstructure:"book_sustained_per_sec"`
}

// LiquidityScreen gates opportunities and trades on minimum book depth.
type LiquidityScreen struct {
	MinDepthUSD    float64 `mapstructure:"min_depth_usd"`
	MaxSpread      float64 `mapstructure:"max_spread"`
	MinBidDepthUSD float64 `mapstructure:"min_bid_depth_usd"`
	MinAskDepthUSD float64 `mapstructure:"min_ask_depth_usd"`
}

// ScanFilter bounds which markets the scanner even considers tracking.
type ScanFilter struct {
	RequireActive    bool     `mapstructure:"require_active"`
	ExcludeClosed    bool     `mapstructure:"exclude_closed"`
	AllowCategories  []string `mapstructure:"allow_categories"`
	TagAllowList     []string `mapstructure:"tag_allow_list"`
	TagDenyList      []string `mapstructure:"tag_deny_list"`
	QuestionPatterns []string `mapstructure:"question_patterns"`
	MinHoursToExpiry float64  `mapstructure:"min_hours_to_expiry"`
	MaxHoursToExpiry float64  `mapstructure:"max_hours_to_expiry"`
}

// ScannerConfig controls how the engine discovers, filters, and scores
// tracked opportunities.
type ScannerConfig struct {
	PollInterval    time.Duration   `mapstructure:"poll_interval"`
	MaxTracked      int             `mapstructure:"max_tracked"`
	MaxPages        int             `mapstructure:"max_pages"`
	BookBatchSize   int             `mapstructure:"book_batch_size"`
	Filter          ScanFilter      `mapstructure:"filter"`
	Liquidity       LiquidityScreen `mapstructure:"liquidity"`
	// The score weights are loaded but not read: market.Score weights
	// depth, spread and recency equally.
	ScoreWeightDepth    float64     `mapstructure:"score_weight_depth"`
	ScoreWeightSpread   float64     `mapstructure:"score_weight_spread"`
	ScoreWeightRecency  float64     `mapstructure:"score_weight_recency"`
}

// EconomicFeedConfig configures the BLS-style economic release poller.
type EconomicFeedConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	SeriesIDs       []string      `mapstructure:"series_ids"`
	RegistrationKey string        `mapstructure:"registration_key"`
}

// SportsFeedConfig configures the scoreboard poller.
type SportsFeedConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Endpoint     string        `mapstructure:"endpoint"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Leagues      []SportsLeague `mapstructure:"leagues"`
}

// SportsLeague names one sport/league scoreboard path segment pair.
type SportsLeague struct {
	Sport  string `mapstructure:"sport"`
	League string `mapstructure:"league"`
}

// CryptoExchangeConfig configures one WebSocket ticker source for the crypto feed.
type CryptoExchangeConfig struct {
	Name    string `mapstructure:"name"`
	WSURL   string `mapstructure:"ws_url"`
	Primary bool   `mapstructure:"primary"`
}

// CryptoFeedConfig configures the crypto WS feed and cross-validation pass.
type CryptoFeedConfig struct {
	Enabled                bool                   `mapstructure:"enabled"`
	Pairs                  []string               `mapstructure:"pairs"`
	Exchanges              []CryptoExchangeConfig `mapstructure:"exchanges"`
	PriceMoveThresholdPct  float64                `mapstructure:"price_move_threshold_pct"`
	ValidationThresholdPct float64                `mapstructure:"validation_threshold_pct"`
	CrossValidateInterval  time.Duration          `mapstructure:"cross_validate_interval"`
	PingInterval           time.Duration          `mapstructure:"ping_interval"`
}

// FeedsConfig groups the three ground-truth feed subtypes.
type FeedsConfig struct {
	Economic EconomicFeedConfig `mapstructure:"economic"`
	Sports   SportsFeedConfig   `mapstructure:"sports"`
	Crypto   CryptoFeedConfig   `mapstructure:"crypto"`
}

// CategoryOverride lets strategy parameters be tuned per market category.
type CategoryOverride struct {
	MinEdge float64 `mapstructure:"min_edge"`
}

// StrategyConfig tunes the arbitrage signal generator, sizer, and executor.
//
//   - MinEdge: minimum fair-value-vs-book edge required to generate a signal.
//   - MatchConfidenceThreshold: minimum match confidence required to act on a feed event.
//   - BaseSizeUSD/MaxSizeUSD: sizing bounds per trade.
//   - UseKelly/KellyFraction: optional Kelly-fraction position sizing.
//   - MaxSlippage: worst acceptable slippage for market orders (fraction, not bps).
//   - DefaultOrderType: FOK or GTC.
//   - MinProfitUSD: reject trades below this estimated profit (tokens × edge; fees are not deducted).
type StrategyConfig struct {
	MinEdge                  float64                     `mapstructure:"min_edge"`
	MatchConfidenceThreshold float64                     `mapstructure:"match_confidence_threshold"`
	MaxStalenessSecs         float64                     `mapstructure:"max_staleness_secs"`
	BaseSizeUSD              float64                     `mapstructure:"base_size_usd"`
	MaxSizeUSD               float64                     `mapstructure:"max_size_usd"`
	UseKelly                 bool                        `mapstructure:"use_kelly"`
	KellyFraction            float64                     `mapstructure:"kelly_fraction"`
	MaxSlippage              float64                     `mapstructure:"max_slippage"`
	DefaultOrderType         string                      `mapstructure:"default_order_type"`
	MinProfitUSD             float64                     `mapstructure:"min_profit_usd"`
	MaxTradesPerEvent        int                         `mapstructure:"max_trades_per_event"`
	CooldownSecs             float64                     `mapstructure:"cooldown_secs"`
	PriorityWeights          PriorityWeights             `mapstructure:"priority_weights"`
	CategoryOverrides        map[string]CategoryOverride `mapstructure:"category_overrides"`
}

// PriorityWeights weight the prioritizer's composite score.
type PriorityWeights struct {
	Opportunity float64 `mapstructure:"opportunity"`
	Confidence  float64 `mapstructure:"confidence"`
	Edge        float64 `mapstructure:"edge"`
	Category    float64 `mapstructure:"category"`
}

// RiskConfig sets the hard limits enforced by the risk gates, plus the
// kill-switch auto-trigger thresholds and the market quality filter.
type RiskConfig struct {
	MaxDailyLossUSD         float64       `mapstructure:"max_daily_loss_usd"`
	BankrollUSD             float64       `mapstructure:"bankroll_usd"`
	MaxBankrollPctPerEvent  float64       `mapstructure:"max_bankroll_pct_per_event"`
	MaxConcurrentPositions  int           `mapstructure:"max_concurrent_positions"`
	MinOrderbookDepthUSD    float64       `mapstructure:"min_orderbook_depth_usd"`
	MaxSpread               float64       `mapstructure:"max_spread"`

	MaxConsecutiveLosses int           `mapstructure:"max_consecutive_losses"`
	ErrorRateWindow      int           `mapstructure:"error_rate_window"`
	MaxErrorRatePct      float64       `mapstructure:"max_error_rate_pct"`
	ConnectivityMaxErrors int          `mapstructure:"connectivity_max_errors"`

	QualityFilter QualityFilterConfig `mapstructure:"quality_filter"`
}

// QualityFilterConfig pre-screens opportunities (not individual trades).
type QualityFilterConfig struct {
	MinDepthUSD    float64 `mapstructure:"min_depth_usd"`
	MinBidDepthUSD float64 `mapstructure:"min_bid_depth_usd"`
	MinAskDepthUSD float64 `mapstructure:"min_ask_depth_usd"`
	MaxSpread      float64 `mapstructure:"max_spread"`
	MaxFeeRateBps  int     `mapstructure:"max_fee_rate_bps"`
}

// PreSignConfig tunes the pre-signed order pool.
type PreSignConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	StaleThreshold  time.Duration `mapstructure:"stale_threshold"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ExpirationSecs  int64         `mapstructure:"expiration_secs"`
}

// OracleConfig tunes dispute/whale monitoring.
type OracleConfig struct {
	WhaleAllowList []string `mapstructure:"whale_allow_list"`
	WhaleMinUSD    float64  `mapstructure:"whale_min_usd"`
}

// AlertsConfig controls alert channel fan-out and throttling.
type AlertsConfig struct {
	SlackEnabled     bool          `mapstructure:"slack_enabled"`
	SlackWebhookURL  string        `mapstructure:"slack_webhook_url"`
	DiscordEnabled   bool          `mapstructure:"discord_enabled"`
	DiscordWebhookURL string       `mapstructure:"discord_webhook_url"`
	TelegramEnabled  bool          `mapstructure:"telegram_enabled"`
	TelegramBotToken string        `mapstructure:"telegram_bot_token"`
	TelegramChatID   string        `mapstructure:"telegram_chat_id"`
	ThrottleSecs     float64       `mapstructure:"throttle_secs"`
	DailySummaryHourUTC int        `mapstructure:"daily_summary_hour_utc"`
	PaperMode        bool          `mapstructure:"paper_mode"`
	DecisionLogPath  string        `mapstructure:"decision_log_path"`
}

// MetricsConfig tunes the in-memory metrics collector.
type MetricsConfig struct {
	MaxLatencySamples int  `mapstructure:"max_latency_samples"`
	PrometheusEnabled bool `mapstructure:"prometheus_enabled"`
	PrometheusPort    int  `mapstructure:"prometheus_port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ARB_PRIVATE_KEY, ARB_API_KEY, ARB_API_SECRET, ARB_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("ARB_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("ARB_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("ARB_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("ARB_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if v := os.Getenv("ARB_DRY_RUN"); v == "true" || v == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set ARB_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required (137 for mainnet)")
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
	}
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	if c.Strategy.MinEdge <= 0 {
		return fmt.Errorf("strategy.min_edge must be > 0")
	}
	if c.Strategy.MaxSizeUSD <= 0 {
		return fmt.Errorf("strategy.max_size_usd must be > 0")
	}
	if c.Risk.BankrollUSD <= 0 {
		return fmt.Errorf("risk.bankroll_usd must be > 0")
	}
	if c.Risk.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("risk.max_concurrent_positions must be > 0")
	}
	if c.Scanner.MaxTracked <= 0 {
		return fmt.Errorf("scanner.max_tracked must be > 0")
	}
	return nil
}
