package config

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Default file locations for a live run
const (
	DefaultConfigPath = "config.toml"
	DefaultWalletPath = "wallet_mainnet.json"
	// DefaultStatusIntervalSecs is the live snapshot cadence
	DefaultStatusIntervalSecs = 10
	envPrefix                 = "HARNESS"
)

var (
	errConfigNotFound     = errors.New("config file not found")
	errEmptySymbol        = errors.New("symbol is empty")
	errUnknownStrategy    = errors.New("unknown strategy")
	errNegativeCost       = errors.New("slippage and fee basis points must be non-negative")
	errNegativeBalance    = errors.New("balance must be non-negative")
	errMarketDataURLUnset = errors.New("market data url is required for a live run")
	errGatewayURLUnset    = errors.New("gateway url is required unless dry run is set")
	errSidecarURLUnset    = errors.New("sidecar is enabled without a url")
	errInvalidInterval    = errors.New("interval must be non-negative")
	errInvalidTarget      = errors.New("profit target must be trigger:fraction")
	errWalletKeyMaterial  = errors.New("wallet file holds key material, only the public address is read")
	errWalletAddressUnset = errors.New("wallet file has no address")
)

// Config holds everything a live run needs. Historical runs take their
// settings from the command line
type Config struct {
	Strategy   StrategySettings   `mapstructure:"strategy"`
	MarketData MarketDataSettings `mapstructure:"market_data"`
	Execution  ExecutionSettings  `mapstructure:"execution"`
	Risk       RiskSettings       `mapstructure:"risk"`
	Sidecar    SidecarSettings    `mapstructure:"sidecar"`
	Status     StatusSettings     `mapstructure:"status"`
}

// StrategySettings selects the strategy and the market it trades
type StrategySettings struct {
	Name     string         `mapstructure:"name"`
	Symbol   string         `mapstructure:"symbol"`
	Interval string         `mapstructure:"interval"`
	Custom   map[string]any `mapstructure:"custom"`
}

// MarketDataSettings configure the websocket bar feed
type MarketDataSettings struct {
	URL        string        `mapstructure:"url"`
	MinBackoff time.Duration `mapstructure:"min_backoff"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// Timeout stops the run when no bar arrives in time. Zero disables it
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExecutionSettings configure order submission
type ExecutionSettings struct {
	DryRun            bool            `mapstructure:"dry_run"`
	Wallet            string          `mapstructure:"wallet"`
	GatewayURL        string          `mapstructure:"gateway_url"`
	StartingBalance   decimal.Decimal `mapstructure:"starting_balance"`
	MinBalance        decimal.Decimal `mapstructure:"min_balance"`
	SlippageBps       float64         `mapstructure:"slippage_bps"`
	FeeBps            float64         `mapstructure:"fee_bps"`
	RequestsPerSecond float64         `mapstructure:"requests_per_second"`
	RetryAttempts     int             `mapstructure:"retry_attempts"`
	NotionalCap       decimal.Decimal `mapstructure:"notional_cap"`
	Ledger            string          `mapstructure:"ledger"`
}

// RiskSettings build the live risk pipeline
type RiskSettings struct {
	StopLossPct float64 `mapstructure:"stop_loss_pct"`
	// ProfitTargets is a ladder in the form "0.05:0.5,0.10:0.5"
	ProfitTargets   string  `mapstructure:"profit_targets"`
	MaxPositions    int     `mapstructure:"max_positions"`
	MinConfidence   float64 `mapstructure:"min_confidence"`
	KellyMultiplier float64 `mapstructure:"kelly_multiplier"`
	KellyMinTrades  int     `mapstructure:"kelly_min_trades"`
	MaxPositionPct  float64 `mapstructure:"max_position_pct"`
}

// SidecarSettings configure the advisory overlay
type SidecarSettings struct {
	Enabled                        bool          `mapstructure:"enabled"`
	URL                            string        `mapstructure:"url"`
	Timeout                        time.Duration `mapstructure:"timeout"`
	MaxMultiplier                  float64       `mapstructure:"max_multiplier"`
	MaxConfidenceDelta             float64       `mapstructure:"max_confidence_delta"`
	MinGuidanceScore               float64       `mapstructure:"min_guidance_score"`
	BypassPriorities               []string      `mapstructure:"bypass_priorities"`
	LowBalancePriorityCapLamports  uint64        `mapstructure:"low_balance_priority_cap_lamports"`
	LowBalancePriorityThresholdSOL float64       `mapstructure:"low_balance_priority_threshold_sol"`
	ReferenceSOLPriceUSD           float64       `mapstructure:"reference_sol_price_usd"`
}

// StatusSettings configure snapshot publishing
type StatusSettings struct {
	IntervalSecs int `mapstructure:"interval_secs"`
	// Listen serves snapshots over HTTP when set
	Listen string `mapstructure:"listen"`
}

// LiveOverrides are command line values for a live run. Nil fields were not
// given and leave the file value in place
type LiveOverrides struct {
	Wallet                         *string
	DryRun                         *bool
	MinBalance                     *float64
	MaxPositionPct                 *float64
	MaxPositions                   *int
	ProfitTargets                  *string
	StopLossPct                    *float64
	KellyMultiplier                *float64
	MinConfidence                  *float64
	StatusIntervalSecs             *int
	EnableSidecar                  *bool
	SidecarURL                     *string
	OverrideMaxMultiplier          *float64
	OverrideMaxConfidenceDelta     *float64
	OverrideMinGuidanceScore       *float64
	OverrideBypassPriorities       *string
	LowBalancePriorityCapLamports  *uint64
	LowBalancePriorityThresholdSOL *float64
	ReferenceSOLPriceUSD           *float64
	MarketDataURL                  *string
	GatewayURL                     *string
	StatusListen                   *string
	Ledger                         *string
}
