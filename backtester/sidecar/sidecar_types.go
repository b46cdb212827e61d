package sidecar

import (
	"context"
	"errors"
	"time"

	"github.com/solquant/harness/backtester/eventtypes/signal"
	"github.com/solquant/harness/common/request"
)

// Defaults for the advice clamps
const (
	DefaultMaxMultiplier      = 2.0
	DefaultMaxConfidenceDelta = 0.2
	DefaultMinGuidanceScore   = 0.5
	DefaultTimeout            = 2 * time.Second
	LamportsPerSOL            = 1_000_000_000

	evaluatePath = "/v1/evaluate"
)

var (
	errEmptyURL        = errors.New("sidecar url is empty")
	errMalformedAdvice = errors.New("malformed advice")
	errInvalidSettings = errors.New("invalid sidecar settings")
)

// Advice is the sidecar's view on one signal
type Advice struct {
	SizeMultiplier  float64 `json:"size_multiplier"`
	ConfidenceDelta float64 `json:"confidence_delta"`
	GuidanceScore   float64 `json:"guidance_score"`
}

// Summary is the portfolio state sent with a request
type Summary struct {
	Cash            float64 `json:"cash"`
	Equity          float64 `json:"equity"`
	RealizedPnL     float64 `json:"realized_pnl"`
	OpenPositions   int     `json:"open_positions"`
	PositionQty     float64 `json:"position_qty"`
	HighWaterMark   float64 `json:"high_water_mark"`
	ClosedTrades    int     `json:"closed_trades"`
	ClosedTradeWins int     `json:"closed_trade_wins"`
}

// Advisor returns advice for a signal
type Advisor interface {
	Evaluate(ctx context.Context, sig *signal.Signal, summary Summary) (Advice, error)
}

// Client is the HTTP advisor
type Client struct {
	requester *request.Requester
	url       string
	timeout   time.Duration
}

// Settings are the override knobs. Zero values take the defaults, except
// the low balance fields which disable the cap when zero
type Settings struct {
	MaxMultiplier          float64
	MaxConfidenceDelta     float64
	MinGuidanceScore       float64
	BypassPriorities       []string
	LowBalanceCapLamports  uint64
	LowBalanceThresholdSOL float64
	ReferenceSOLPriceUSD   float64
}

// Overlay applies advice to opening signals
type Overlay struct {
	advisor  Advisor
	settings Settings
	bypass   map[string]struct{}
}

// Decision is the outcome of Overlay.Apply. NotionalCap is zero when no
// low balance cap applies
type Decision struct {
	Signal      *signal.Signal
	NotionalCap float64
	Applied     bool
	Reason      string
}

type evaluateRequest struct {
	Symbol            string    `json:"symbol"`
	Side              string    `json:"side"`
	Confidence        float64   `json:"confidence"`
	SuggestedSizeFrac float64   `json:"suggested_size_frac"`
	RationaleTag      string    `json:"rationale_tag"`
	Timestamp         time.Time `json:"timestamp"`
	Portfolio         Summary   `json:"portfolio"`
}
