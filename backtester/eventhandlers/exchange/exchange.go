package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/order"
	gctmath "github.com/solquant/harness/common/math"
	"github.com/solquant/harness/log"
)

// ParseMode accepts "bar" and "next_bar_open"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bar":
		return Bar, nil
	case "next_bar_open", "nextbaropen", "next-bar-open":
		return NextBarOpen, nil
	}
	return Bar, fmt.Errorf("%w %w %q", common.ErrConfiguration, errInvalidMode, s)
}

func (m Mode) String() string {
	switch m {
	case Bar:
		return "bar"
	case NextBarOpen:
		return "next_bar_open"
	}
	return "unknown"
}

// NewSimulator validates the cost parameters
func NewSimulator(mode Mode, slippageBps, feeBps float64) (*Simulator, error) {
	if mode != Bar && mode != NextBarOpen {
		return nil, fmt.Errorf("%w %w %d", common.ErrConfiguration, errInvalidMode, mode)
	}
	if !gctmath.IsFinite(slippageBps, feeBps) || slippageBps < 0 || feeBps < 0 {
		return nil, fmt.Errorf("%w %w: slippage %v fee %v", common.ErrConfiguration, errNegativeBps, slippageBps, feeBps)
	}
	return &Simulator{Mode: mode, SlippageBps: slippageBps, FeeBps: feeBps}, nil
}

// CostBps is the slippage plus fee a fill is expected to cost
func (s *Simulator) CostBps() float64 {
	return s.SlippageBps + s.FeeBps
}

// ExecuteOrder fills o at the bar close in Bar mode, or queues it for the
// symbol's next bar in NextBarOpen mode
func (s *Simulator) ExecuteOrder(_ context.Context, o *order.Order, b *kline.Bar) (*fill.Fill, error) {
	if b == nil {
		return nil, common.ErrNilArguments
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if s.Mode == NextBarOpen {
		s.queue = append(s.queue, o)
		return nil, nil
	}
	return s.FillAt(o, b.Close, b.Timestamp)
}

// Flush fills every order queued for b's symbol at b's open
func (s *Simulator) Flush(b *kline.Bar) ([]*fill.Fill, error) {
	if b == nil {
		return nil, common.ErrNilArguments
	}
	if len(s.queue) == 0 {
		return nil, nil
	}
	var resp []*fill.Fill
	remaining := s.queue[:0]
	for _, o := range s.queue {
		if o.Symbol != b.Symbol {
			remaining = append(remaining, o)
			continue
		}
		f, err := s.FillAt(o, b.Open, b.Timestamp)
		if err != nil {
			return resp, err
		}
		resp = append(resp, f)
	}
	for i := len(remaining); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = remaining
	return resp, nil
}

// Cancel drops and returns every queued order
func (s *Simulator) Cancel() []*order.Order {
	resp := s.queue
	s.queue = nil
	for _, o := range resp {
		log.Warnf(log.Execution, "cancelled %s %s %.6f queued at %v: stream ended", o.Symbol, o.Side, o.Quantity, o.Time)
	}
	return resp
}

// Pending returns the number of queued orders
func (s *Simulator) Pending() int {
	return len(s.queue)
}

// FillAt fills o in full at price moved against the order by the slippage
func (s *Simulator) FillAt(o *order.Order, price float64, t time.Time) (*fill.Fill, error) {
	if o == nil {
		return nil, common.ErrNilArguments
	}
	if price <= 0 || !gctmath.IsFinite(price) {
		return nil, fmt.Errorf("%w cannot fill %s at price %v", common.ErrExecution, o.ID, price)
	}
	return fill.Execute(o, price, s.SlippageBps, s.FeeBps, t), nil
}

// Reset drops queued orders without logging
func (s *Simulator) Reset() {
	s.queue = nil
}
