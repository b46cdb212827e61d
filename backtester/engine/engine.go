package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/data"
	"github.com/solquant/harness/backtester/data/live"
	"github.com/solquant/harness/backtester/eventhandlers/exchange"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/risk"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/size"
	"github.com/solquant/harness/backtester/eventhandlers/statistics"
	"github.com/solquant/harness/backtester/eventhandlers/strategies"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	"github.com/solquant/harness/backtester/ledger"
	"github.com/solquant/harness/backtester/sidecar"
	"github.com/solquant/harness/log"
)

// New returns a historical engine filling orders in the simulator
func New(s *Settings, pipeline *risk.Pipeline, handlers ...strategies.Handler) (*BackTest, error) {
	if s == nil {
		return nil, common.ErrNilArguments
	}
	sim, err := exchange.NewSimulator(s.Mode, s.SlippageBps, s.FeeBps)
	if err != nil {
		return nil, err
	}
	bt, err := newBackTest(s, pipeline, handlers)
	if err != nil {
		return nil, err
	}
	bt.simulator = sim
	bt.executor = sim
	bt.sizer.CostBps = sim.CostBps()
	return bt, nil
}

// NewLive returns an engine dispatching orders to executor. costBps is the
// expected slippage plus fee used to keep buys within cash
func NewLive(s *Settings, pipeline *risk.Pipeline, executor exchange.ExecutionHandler, costBps float64, handlers ...strategies.Handler) (*BackTest, error) {
	if s == nil {
		return nil, common.ErrNilArguments
	}
	if executor == nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, errNoExecutor)
	}
	bt, err := newBackTest(s, pipeline, handlers)
	if err != nil {
		return nil, err
	}
	bt.executor = executor
	bt.sizer.CostBps = costBps
	bt.live = true
	return bt, nil
}

func newBackTest(s *Settings, pipeline *risk.Pipeline, handlers []strategies.Handler) (*BackTest, error) {
	if len(handlers) == 0 {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, errNoStrategies)
	}
	for i := range handlers {
		if handlers[i] == nil {
			return nil, fmt.Errorf("%w strategy %d %w", common.ErrConfiguration, i, common.ErrNilArguments)
		}
	}
	settings := *s
	if settings.StartingBalance == 0 {
		settings.StartingBalance = DefaultStartingBalance
	}
	if settings.MaxDataErrors == 0 {
		settings.MaxDataErrors = DefaultMaxDataErrors
	}
	if settings.StrategyName == "" {
		settings.StrategyName = handlers[0].Name()
	}
	if settings.Symbol == "" {
		settings.Symbol = handlers[0].Symbol()
	}
	pf, err := portfolio.New(settings.StartingBalance)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		pipeline = risk.NewPipeline()
	}
	return &BackTest{
		settings:   settings,
		strategies: handlers,
		pipeline:   pipeline,
		portfolio:  pf,
		sizer:      &size.Size{NotionalCap: settings.NotionalCap},
		statistic:  statistics.New(settings.Symbol, settings.StrategyName, settings.Interval, settings.StartingBalance),
		lastSeen:   make(map[string]time.Time),
		lastBars:   make(map[string]kline.Bar),
	}, nil
}

// SetLedger records every fill to w
func (bt *BackTest) SetLedger(w ledger.Writer) {
	bt.ledger = w
}

// SetOverlay routes opening signals through the sidecar overlay ahead of
// the risk pipeline
func (bt *BackTest) SetOverlay(o *sidecar.Overlay) {
	bt.overlay = o
}

// AddSink registers a snapshot receiver
func (bt *BackTest) AddSink(s SnapshotSink) {
	if s != nil {
		bt.sinks = append(bt.sinks, s)
	}
}

// Portfolio returns the read-only portfolio view
func (bt *BackTest) Portfolio() portfolio.View {
	return bt.portfolio
}

// Fills returns the fills ledger
func (bt *BackTest) Fills() []fill.Fill {
	return bt.portfolio.Fills()
}

// Reset returns the engine to its starting state
func (bt *BackTest) Reset() {
	bt.portfolio.Reset()
	bt.statistic.Reset()
	for _, s := range bt.strategies {
		s.Reset()
	}
	if bt.simulator != nil {
		bt.simulator.Reset()
	}
	bt.lastSeen = make(map[string]time.Time)
	bt.lastBars = make(map[string]kline.Bar)
}

// Run replays p to the end, liquidates open positions at the last close and
// returns the report. Cancelling ctx stops the run at the next bar
func (bt *BackTest) Run(ctx context.Context, p data.Provider) (*statistics.Report, error) {
	if p == nil {
		return nil, common.ErrNilArguments
	}
	log.Infof(log.BackTester, "running %s on %s %s", bt.settings.StrategyName, bt.settings.Symbol, bt.settings.Interval)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w %w", common.ErrInterrupted, err)
		}
		b, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if !errors.Is(err, common.ErrData) {
				return nil, err
			}
			if err = bt.dataError(err); err != nil {
				return nil, err
			}
			continue
		}
		if err = bt.ProcessBar(ctx, b); err != nil {
			return nil, err
		}
	}
	if err := bt.closeOut(); err != nil {
		return nil, err
	}
	return bt.statistic.CalculateAllResults(bt.portfolio)
}

// ProcessBar runs one bar through the pipeline. Invalid or out of order bars
// are skipped and counted; the returned error is fatal
func (bt *BackTest) ProcessBar(ctx context.Context, b kline.Bar) error {
	if err := b.Validate(); err != nil {
		return bt.dataError(err)
	}
	if last, ok := bt.lastSeen[b.Symbol]; ok && !b.Timestamp.After(last) {
		return bt.dataError(fmt.Errorf("%w %s %w: %v <= %v", common.ErrData, b.Symbol, errNonMonotonic, b.Timestamp, last))
	}
	bt.lastSeen[b.Symbol] = b.Timestamp
	bt.lastBars[b.Symbol] = b

	if bt.simulator != nil {
		fills, err := bt.simulator.Flush(&b)
		if err != nil {
			return err
		}
		for _, f := range fills {
			if err := bt.applyFill(f); err != nil {
				return err
			}
		}
	}
	if err := bt.portfolio.MarkToMarket(&b); err != nil {
		return err
	}

	var signals []*signal.Signal
	for _, s := range bt.strategies {
		if sym := s.Symbol(); sym != "" && sym != b.Symbol {
			continue
		}
		sig, err := s.OnBar(b)
		if err != nil {
			if !errors.Is(err, common.ErrStrategy) {
				err = fmt.Errorf("%w %s: %w", common.ErrStrategy, s.Name(), err)
			}
			return err
		}
		if sig == nil {
			continue
		}
		if err := sig.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
		signals = append(signals, sig)
	}
	if err := bt.evaluate(ctx, &b, signals); err != nil {
		return err
	}
	return bt.statistic.Update(bt.portfolio, &b)
}

// evaluate runs the risk pipeline. The first pass carries the first signal
// or none so that protective closes happen before any strategy opening. A
// protective close preempts every remaining signal for the bar
func (bt *BackTest) evaluate(ctx context.Context, b *kline.Bar, signals []*signal.Signal) error {
	var first *signal.Signal
	if len(signals) > 0 {
		first = signals[0]
	}
	protective, err := bt.handle(ctx, b, first)
	if err != nil {
		return err
	}
	if protective {
		bt.preempt(b, signals)
		return nil
	}
	for i := 1; i < len(signals); i++ {
		protective, err = bt.handle(ctx, b, signals[i])
		if err != nil {
			return err
		}
		if protective {
			bt.preempt(b, signals[i:])
			return nil
		}
	}
	return nil
}

func (bt *BackTest) preempt(b *kline.Bar, signals []*signal.Signal) {
	if len(signals) == 0 {
		return
	}
	bt.statistic.AddPreempted(len(signals))
	log.Debugf(log.Risk, "%d %s signals preempted by a protective close at %v", len(signals), b.Symbol, b.Timestamp)
}

// handle evaluates and executes one signal and reports whether the pipeline
// replaced it with a protective close. Sidecar advice adjusts an opening
// before the risk rules run and the low balance cap bounds what they pass
func (bt *BackTest) handle(ctx context.Context, b *kline.Bar, sig *signal.Signal) (bool, error) {
	var lowBalanceCap float64
	if bt.overlay != nil && sig.IsOpening() {
		d := bt.overlay.Apply(ctx, sig, bt.portfolio)
		sig = d.Signal
		lowBalanceCap = d.NotionalCap
	}
	out, rej := bt.pipeline.Evaluate(sig, bt.portfolio, b)
	if rej != nil {
		bt.statistic.AddRejection(rej.Rule)
		log.Debugf(log.Risk, "%s signal rejected by %s: %s", b.Symbol, rej.Rule, rej.Reason)
		return false, nil
	}
	if out == nil {
		return false, nil
	}
	protective := isProtective(out) && (sig == nil || !isProtective(sig))

	sizer := *bt.sizer
	if lowBalanceCap > 0 && out.IsOpening() && (sizer.NotionalCap == 0 || lowBalanceCap < sizer.NotionalCap) {
		sizer.NotionalCap = lowBalanceCap
	}
	o, err := bt.portfolio.SizeOrder(out, b, &sizer)
	if err != nil {
		return protective, err
	}
	if o == nil {
		return protective, nil
	}
	execCtx := ctx
	if bt.live {
		// a submission that has started is allowed to finish
		execCtx = context.WithoutCancel(ctx)
	}
	f, err := bt.executor.ExecuteOrder(execCtx, o, b)
	if err != nil {
		return protective, err
	}
	if f == nil {
		return protective, nil
	}
	return protective, bt.applyFill(f)
}

func isProtective(s *signal.Signal) bool {
	return s.RationaleTag == common.TagStopLoss || s.RationaleTag == common.TagTakeProfit
}

func (bt *BackTest) applyFill(f *fill.Fill) error {
	realized, err := bt.portfolio.ApplyFill(f)
	if err != nil {
		return err
	}
	bt.statistic.AddFill(f)
	log.Infof(log.Execution, "%v %s %s %.6f @ %.6f fee %.6f realized %.6f [%s]",
		f.Time, f.Symbol, f.Side, f.Quantity, f.Price, f.FeeQuote, realized, f.RationaleTag)
	if bt.ledger != nil {
		if err := bt.ledger.Record(f); err != nil {
			log.Errorf(log.Ledger, "recording fill %s: %v", f.OrderID, err)
		}
	}
	return nil
}

func (bt *BackTest) dataError(err error) error {
	bt.statistic.AddDataError()
	n := bt.statistic.DataErrors()
	log.Warnf(log.DataMgr, "skipping bar: %v", err)
	if bt.settings.MaxDataErrors > 0 && n > bt.settings.MaxDataErrors {
		return fmt.Errorf("%w %w: %d > %d", common.ErrData, errTooManyDataErrors, n, bt.settings.MaxDataErrors)
	}
	return nil
}

// closeOut cancels queued orders and closes open positions at each
// symbol's last close
func (bt *BackTest) closeOut() error {
	if bt.simulator == nil {
		return nil
	}
	if cancelled := bt.simulator.Cancel(); len(cancelled) > 0 {
		bt.statistic.AddCancelled(len(cancelled))
	}
	for _, pos := range bt.portfolio.Positions() {
		b, ok := bt.lastBars[pos.Symbol]
		if !ok {
			continue
		}
		sig := signal.NewClose(pos.Symbol, b.Timestamp, common.TagEndOfStream)
		o, err := bt.portfolio.SizeOrder(sig, &b, bt.sizer)
		if err != nil {
			return err
		}
		if o == nil {
			continue
		}
		f, err := bt.simulator.FillAt(o, b.Close, b.Timestamp)
		if err != nil {
			return err
		}
		if err := bt.applyFill(f); err != nil {
			return err
		}
	}
	return nil
}

// SyncBalance sets cash from the chain balance and refuses to trade below
// minBalance
func (bt *BackTest) SyncBalance(ctx context.Context, b Balancer, minBalance float64) error {
	if b == nil {
		return common.ErrNilArguments
	}
	bal, err := b.Balance(ctx)
	if err != nil {
		return err
	}
	if bal < minBalance {
		return fmt.Errorf("%w %w: %.6f < %.6f", common.ErrConfiguration, errBelowMinBalance, bal, minBalance)
	}
	log.Infof(log.Livetester, "chain balance %.6f", bal)
	if err := bt.portfolio.SetCash(bal); err != nil {
		return err
	}
	if bt.portfolio.OpenPositionCount() == 0 {
		bt.statistic.SetStartingBalance(bal)
	}
	return nil
}

// RunLive processes bars from source until ctx is cancelled, the source
// closes or execution fails permanently. Snapshots are published every
// status interval and once more on exit
func (bt *BackTest) RunLive(ctx context.Context, source live.Source) error {
	if !bt.live {
		return errNotLive
	}
	if source == nil {
		return common.ErrNilArguments
	}
	bars, err := source.Stream(ctx)
	if err != nil {
		return err
	}
	log.Infof(log.Livetester, "running %s live on %s", bt.settings.StrategyName, bt.settings.Symbol)
	defer bt.publish()

	var tick <-chan time.Time
	if bt.settings.StatusInterval > 0 {
		ticker := time.NewTicker(bt.settings.StatusInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	var timeout <-chan time.Time
	var timeoutTimer *time.Timer
	if bt.settings.LiveDataTimeout > 0 {
		timeoutTimer = time.NewTimer(bt.settings.LiveDataTimeout)
		defer timeoutTimer.Stop()
		timeout = timeoutTimer.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Infof(log.Livetester, "shutting down: %v", ctx.Err())
			return fmt.Errorf("%w %w", common.ErrInterrupted, ctx.Err())
		case <-tick:
			bt.publish()
		case <-timeout:
			return fmt.Errorf("%w %v", ErrLiveDataTimeout, bt.settings.LiveDataTimeout)
		case b, ok := <-bars:
			if !ok {
				log.Infof(log.Livetester, "market data closed")
				return nil
			}
			if ctx.Err() != nil {
				return fmt.Errorf("%w %w", common.ErrInterrupted, ctx.Err())
			}
			if timeoutTimer != nil {
				timeoutTimer.Reset(bt.settings.LiveDataTimeout)
			}
			if err := bt.ProcessBar(ctx, b); err != nil {
				if errors.Is(err, common.ErrExecutionFatal) {
					bt.logPositions()
				}
				return err
			}
		}
	}
}

func (bt *BackTest) logPositions() {
	snaps := bt.portfolio.Snapshots()
	log.Errorf(log.Livetester, "stopping with %d open positions, cash %.6f", len(snaps), bt.portfolio.Cash())
	for i := range snaps {
		s := &snaps[i]
		log.Errorf(log.Livetester, "open %s qty %.6f entry %.6f mark %.6f unrealized %.6f stop %.6f",
			s.Symbol, s.Quantity, s.AvgEntryPrice, s.Mark, s.UnrealizedPnL, s.StopPrice)
	}
}

// Snapshot captures the current state
func (bt *BackTest) Snapshot() Snapshot {
	equity := bt.portfolio.Equity()
	hwm := bt.portfolio.EquityHighWaterMark()
	var dd float64
	if hwm > 0 && equity < hwm {
		dd = (hwm - equity) / hwm
	}
	return Snapshot{
		Time:           time.Now().UTC(),
		Live:           bt.live,
		Strategy:       bt.settings.StrategyName,
		Bars:           bt.statistic.Bars(),
		Cash:           bt.portfolio.Cash(),
		Equity:         equity,
		HighWaterMark:  hwm,
		Drawdown:       dd,
		RealizedPnL:    bt.portfolio.RealizedPnL(),
		TotalFees:      bt.portfolio.TotalFees(),
		Fills:          bt.statistic.TotalTrades(),
		DataErrors:     bt.statistic.DataErrors(),
		RiskRejections: bt.statistic.RiskRejections(),
		ClosedTrades:   bt.portfolio.TradeStats(),
		Positions:      bt.portfolio.Snapshots(),
	}
}

func (bt *BackTest) publish() {
	if len(bt.sinks) == 0 {
		return
	}
	s := bt.Snapshot()
	for _, sink := range bt.sinks {
		sink.Publish(s)
	}
}

// Report builds the report for the bars processed so far
func (bt *BackTest) Report() (*statistics.Report, error) {
	return bt.statistic.CalculateAllResults(bt.portfolio)
}

// Publish logs the snapshot
func (LogSink) Publish(s Snapshot) {
	log.Infof(log.StatusMgr, "equity %.4f cash %.4f drawdown %.2f%% realized %.4f fills %d open %d",
		s.Equity, s.Cash, s.Drawdown*100, s.RealizedPnL, s.Fills, len(s.Positions))
}
