package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	gctmath "github.com/solquant/harness/common/math"
	"github.com/solquant/harness/common/request"
	"github.com/solquant/harness/log"
)

// NewClient returns an advisor posting to baseURL
func NewClient(baseURL string, client *http.Client, opts ...request.RequesterOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, errEmptyURL)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	if client == nil {
		client = &http.Client{}
	}
	opts = append([]request.RequesterOption{request.WithSubLogger(log.Sidecar)}, opts...)
	r, err := request.New("sidecar", client, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	return &Client{requester: r, url: strings.TrimRight(baseURL, "/") + evaluatePath, timeout: DefaultTimeout}, nil
}

// SetTimeout bounds each evaluation. Non-positive values keep the default
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Evaluate asks the sidecar about sig. Every failure wraps common.ErrSidecar
func (c *Client) Evaluate(ctx context.Context, sig *signal.Signal, summary Summary) (Advice, error) {
	if sig == nil {
		return Advice{}, fmt.Errorf("%w %w", common.ErrSidecar, common.ErrNilArguments)
	}
	body, err := json.Marshal(&evaluateRequest{
		Symbol:            sig.Symbol,
		Side:              string(sig.Side),
		Confidence:        sig.Confidence,
		SuggestedSizeFrac: sig.SuggestedSizeFrac,
		RationaleTag:      sig.RationaleTag,
		Timestamp:         sig.Time,
		Portfolio:         summary,
	})
	if err != nil {
		return Advice{}, fmt.Errorf("%w %w", common.ErrSidecar, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.requester.SendPayload(ctx, &request.Item{Method: http.MethodPost, Path: c.url, Body: body})
	if err != nil {
		return Advice{}, fmt.Errorf("%w %w", common.ErrSidecar, err)
	}
	return parseAdvice(resp)
}

// parseAdvice requires guidance_score. A missing size_multiplier means 1 and
// a missing confidence_delta means 0
func parseAdvice(data []byte) (Advice, error) {
	a := Advice{SizeMultiplier: 1}
	var err error
	if a.GuidanceScore, err = jsonparser.GetFloat(data, "guidance_score"); err != nil {
		return Advice{}, fmt.Errorf("%w %w: guidance_score %w", common.ErrSidecar, errMalformedAdvice, err)
	}
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"size_multiplier", &a.SizeMultiplier},
		{"confidence_delta", &a.ConfidenceDelta},
	} {
		v, err := jsonparser.GetFloat(data, f.key)
		switch {
		case err == nil:
			*f.dst = v
		case !errors.Is(err, jsonparser.KeyPathNotFoundError):
			return Advice{}, fmt.Errorf("%w %w: %s %w", common.ErrSidecar, errMalformedAdvice, f.key, err)
		}
	}
	if !gctmath.IsFinite(a.SizeMultiplier, a.ConfidenceDelta, a.GuidanceScore) {
		return Advice{}, fmt.Errorf("%w %w: %s", common.ErrSidecar, errMalformedAdvice, data)
	}
	return a, nil
}

// NewOverlay validates s and returns an overlay around advisor. A nil
// advisor still enforces the low balance cap
func NewOverlay(advisor Advisor, s Settings) (*Overlay, error) {
	if s.MaxMultiplier == 0 {
		s.MaxMultiplier = DefaultMaxMultiplier
	}
	if s.MaxConfidenceDelta == 0 {
		s.MaxConfidenceDelta = DefaultMaxConfidenceDelta
	}
	if s.MinGuidanceScore == 0 {
		s.MinGuidanceScore = DefaultMinGuidanceScore
	}
	if !gctmath.IsFinite(s.MaxMultiplier, s.MaxConfidenceDelta, s.MinGuidanceScore, s.LowBalanceThresholdSOL, s.ReferenceSOLPriceUSD) ||
		s.MaxMultiplier < 0 || s.MaxConfidenceDelta < 0 || s.MaxConfidenceDelta > 1 ||
		s.MinGuidanceScore < 0 || s.MinGuidanceScore > 1 ||
		s.LowBalanceThresholdSOL < 0 || s.ReferenceSOLPriceUSD < 0 {
		return nil, fmt.Errorf("%w %w: %+v", common.ErrConfiguration, errInvalidSettings, s)
	}
	o := &Overlay{advisor: advisor, settings: s, bypass: make(map[string]struct{}, len(s.BypassPriorities))}
	for _, p := range s.BypassPriorities {
		if p = strings.TrimSpace(p); p != "" {
			o.bypass[p] = struct{}{}
		}
	}
	return o, nil
}

// Settings returns the effective settings
func (o *Overlay) Settings() Settings {
	return o.settings
}

// LowBalanceCap returns the notional cap in quote currency when cash is
// below the low balance threshold
func (o *Overlay) LowBalanceCap(cash float64) (float64, bool) {
	s := o.settings
	if s.LowBalanceCapLamports == 0 || s.LowBalanceThresholdSOL <= 0 || s.ReferenceSOLPriceUSD <= 0 {
		return 0, false
	}
	if cash/s.ReferenceSOLPriceUSD >= s.LowBalanceThresholdSOL {
		return 0, false
	}
	return float64(s.LowBalanceCapLamports) / LamportsPerSOL * s.ReferenceSOLPriceUSD, true
}

// Apply adjusts an opening signal. The low balance cap is decided first and
// survives everything else, bypassed tags skip the sidecar, advice below the
// guidance threshold is ignored and accepted advice is clamped. Sidecar
// failures are logged and leave the signal untouched
func (o *Overlay) Apply(ctx context.Context, sig *signal.Signal, view portfolio.View) Decision {
	d := Decision{Signal: sig}
	if o == nil || !sig.IsOpening() {
		return d
	}
	summary := Summarise(view, sig.Symbol)
	if c, ok := o.LowBalanceCap(summary.Cash); ok {
		d.NotionalCap = c
		log.Warnf(log.Sidecar, "low balance %.4f, capping %s notional at %.4f", summary.Cash, sig.Symbol, c)
	}
	if _, ok := o.bypass[sig.RationaleTag]; ok {
		d.Reason = "bypass priority " + sig.RationaleTag
		return d
	}
	if o.advisor == nil {
		d.Reason = "no advisor"
		return d
	}
	a, err := o.advisor.Evaluate(ctx, sig, summary)
	if err != nil {
		log.Warnf(log.Sidecar, "advice ignored for %s: %v", sig.Symbol, err)
		d.Reason = err.Error()
		return d
	}
	if a.GuidanceScore < o.settings.MinGuidanceScore {
		d.Reason = fmt.Sprintf("guidance %.4f below %.4f", a.GuidanceScore, o.settings.MinGuidanceScore)
		log.Debugf(log.Sidecar, "%s %s", sig.Symbol, d.Reason)
		return d
	}
	mult := gctmath.Clamp(a.SizeMultiplier, 0, o.settings.MaxMultiplier)
	delta := gctmath.Clamp(a.ConfidenceDelta, -o.settings.MaxConfidenceDelta, o.settings.MaxConfidenceDelta)
	c := sig.Clone()
	c.SuggestedSizeFrac = gctmath.Clamp(sig.SuggestedSizeFrac*mult, 0, 1)
	c.Confidence = gctmath.Clamp(sig.Confidence+delta, 0, 1)
	c.AppendReasonf("sidecar x%.2f conf %+.2f guidance %.2f", mult, delta, a.GuidanceScore)
	d.Signal = c
	d.Applied = true
	log.Debugf(log.Sidecar, "%s advice applied: size %.4f -> %.4f, confidence %.4f -> %.4f",
		sig.Symbol, sig.SuggestedSizeFrac, c.SuggestedSizeFrac, sig.Confidence, c.Confidence)
	return d
}

// Summarise builds the request summary for symbol
func Summarise(view portfolio.View, symbol string) Summary {
	if view == nil {
		return Summary{}
	}
	ts := view.TradeStats()
	s := Summary{
		Cash:            view.Cash(),
		Equity:          view.Equity(),
		RealizedPnL:     view.RealizedPnL(),
		OpenPositions:   view.OpenPositionCount(),
		HighWaterMark:   view.EquityHighWaterMark(),
		ClosedTrades:    ts.Trades,
		ClosedTradeWins: ts.Wins,
	}
	if pos, ok := view.Position(symbol); ok {
		s.PositionQty = pos.Quantity
	}
	return s
}
