package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/solquant/harness/backtester/chain"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/config"
	"github.com/solquant/harness/backtester/data"
	"github.com/solquant/harness/backtester/data/live"
	"github.com/solquant/harness/backtester/engine"
	"github.com/solquant/harness/backtester/engine/status"
	"github.com/solquant/harness/backtester/eventhandlers/exchange"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/risk"
	"github.com/solquant/harness/backtester/eventhandlers/strategies"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/ledger"
	"github.com/solquant/harness/backtester/sidecar"
	"github.com/solquant/harness/common/request"
	"github.com/solquant/harness/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

func newHistoricalCommand() *cli.Command {
	return &cli.Command{
		Name:      "historical",
		Usage:     "replays a csv of bars through a strategy and prints the result",
		ArgsUsage: "<data_path> <timeframe> <strategy>",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:  "starting-balance",
				Value: engine.DefaultStartingBalance,
				Usage: "the quote balance the run starts with",
			},
			&cli.Float64Flag{
				Name:  "slippage-bps",
				Value: engine.DefaultSlippageBps,
				Usage: "adverse slippage applied to every fill",
			},
			&cli.Float64Flag{
				Name:  "fee-bps",
				Value: engine.DefaultFeeBps,
				Usage: "fee charged on every fill's notional",
			},
			&cli.StringFlag{
				Name:  "mode",
				Value: exchange.Bar.String(),
				Usage: "fill model, 'bar' or 'next_bar_open'",
			},
			&cli.StringFlag{
				Name:  "ledger",
				Usage: "records fills to this path, .db for sqlite, anything else for ndjson",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "prints the full report as json after the result line",
			},
		},
		Action: historical,
	}
}

func newLiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "live",
		Usage: "trades a strategy against a live bar feed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: config.DefaultConfigPath, Usage: "the toml config file"},
			&cli.StringFlag{Name: "wallet", Value: config.DefaultWalletPath, Usage: "json file holding the public wallet address"},
			&cli.BoolFlag{Name: "dry-run", Usage: "simulates fills instead of submitting them"},
			&cli.Float64Flag{Name: "min-balance", Usage: "refuses to start below this chain balance"},
			&cli.Float64Flag{Name: "max-position-pct", Usage: "caps each position at this fraction of equity"},
			&cli.IntFlag{Name: "max-positions", Usage: "the number of positions open at once"},
			&cli.StringFlag{Name: "profit-targets", Usage: "take profit ladder, 'p1:f1,p2:f2'"},
			&cli.Float64Flag{Name: "stop-loss-pct", Usage: "closes a position this far below its entry"},
			&cli.Float64Flag{Name: "kelly-multiplier", Usage: "scales kelly sizing, zero disables it"},
			&cli.Float64Flag{Name: "min-confidence", Usage: "rejects opening signals below this confidence"},
			&cli.IntFlag{Name: "status-interval-secs", Value: config.DefaultStatusIntervalSecs, Usage: "seconds between status snapshots"},
			&cli.BoolFlag{Name: "enable-sidecar", Usage: "consults the advisory sidecar on opening signals"},
			&cli.StringFlag{Name: "sidecar-url", Usage: "the sidecar base url"},
			&cli.Float64Flag{Name: "override-max-multiplier", Usage: "largest size multiplier accepted from the sidecar"},
			&cli.Float64Flag{Name: "override-max-confidence-delta", Usage: "largest confidence change accepted from the sidecar"},
			&cli.Float64Flag{Name: "override-min-guidance-score", Usage: "advice below this guidance score is ignored"},
			&cli.StringFlag{Name: "override-bypass-priorities", Usage: "comma separated rationale tags that skip the sidecar"},
			&cli.Uint64Flag{Name: "low-balance-priority-cap-lamports", Usage: "order notional cap in lamports while the balance is low"},
			&cli.Float64Flag{Name: "low-balance-priority-threshold-sol", Usage: "balance in SOL below which the cap applies"},
			&cli.Float64Flag{Name: "reference-sol-price-usd", Usage: "SOL price used to convert the balance and the cap"},
			&cli.StringFlag{Name: "market-data-url", Usage: "websocket bar feed"},
			&cli.StringFlag{Name: "gateway-url", Usage: "order gateway base url"},
			&cli.StringFlag{Name: "status-listen", Usage: "serves status snapshots over http on this address"},
			&cli.StringFlag{Name: "ledger", Usage: "records fills to this path"},
		},
		Action: liveTrade,
	}
}

func historical(c *cli.Context) error {
	if c.NArg() != 3 {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errUsage)
	}
	path, timeframe, name := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

	interval, err := kline.ParseIntervalStrict(timeframe)
	if err != nil {
		interval = kline.ParseInterval(timeframe)
		log.Warnf(log.BackTester, "unknown timeframe %q, using %s", timeframe, interval)
	}
	mode, err := exchange.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}
	p, err := data.Open(path, "")
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Errorf(log.DataMgr, "closing %s: %v", path, err)
		}
	}()
	h, err := strategies.LoadStrategyByName(name, p.Symbol(), interval)
	if err != nil {
		return fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	bt, err := engine.New(&engine.Settings{
		Symbol:          p.Symbol(),
		StrategyName:    h.Name(),
		Interval:        interval,
		StartingBalance: c.Float64("starting-balance"),
		SlippageBps:     c.Float64("slippage-bps"),
		FeeBps:          c.Float64("fee-bps"),
		Mode:            mode,
	}, risk.DefaultBacktestPipeline(), h)
	if err != nil {
		return err
	}
	if lp := c.String("ledger"); lp != "" {
		w, err := ledger.Open(lp)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Errorf(log.Ledger, "closing %s: %v", lp, err)
			}
		}()
		bt.SetLedger(w)
	}

	r, err := bt.Run(c.Context, p)
	if err != nil {
		return err
	}
	r.PrintTotalResults()
	fmt.Fprintln(c.App.Writer, r.ResultLine())
	if c.Bool("json") {
		out, err := r.Serialise()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, out)
	}
	return nil
}

func liveTrade(c *cli.Context) error {
	cfg, err := loadLiveConfig(c)
	if err != nil {
		return err
	}
	h, err := newLiveHarness(c.Context, cfg)
	if err != nil {
		return err
	}
	return h.run(c.Context)
}

// loadLiveConfig reads the config file and lays the flags given on the
// command line over it
func loadLiveConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyOverrides(liveOverrides(c)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.PrintSetting()
	return cfg, nil
}

func liveOverrides(c *cli.Context) *config.LiveOverrides {
	return &config.LiveOverrides{
		Wallet:                         stringFlag(c, "wallet"),
		DryRun:                         boolFlag(c, "dry-run"),
		MinBalance:                     floatFlag(c, "min-balance"),
		MaxPositionPct:                 floatFlag(c, "max-position-pct"),
		MaxPositions:                   intFlag(c, "max-positions"),
		ProfitTargets:                  stringFlag(c, "profit-targets"),
		StopLossPct:                    floatFlag(c, "stop-loss-pct"),
		KellyMultiplier:                floatFlag(c, "kelly-multiplier"),
		MinConfidence:                  floatFlag(c, "min-confidence"),
		StatusIntervalSecs:             intFlag(c, "status-interval-secs"),
		EnableSidecar:                  boolFlag(c, "enable-sidecar"),
		SidecarURL:                     stringFlag(c, "sidecar-url"),
		OverrideMaxMultiplier:          floatFlag(c, "override-max-multiplier"),
		OverrideMaxConfidenceDelta:     floatFlag(c, "override-max-confidence-delta"),
		OverrideMinGuidanceScore:       floatFlag(c, "override-min-guidance-score"),
		OverrideBypassPriorities:       stringFlag(c, "override-bypass-priorities"),
		LowBalancePriorityCapLamports:  uint64Flag(c, "low-balance-priority-cap-lamports"),
		LowBalancePriorityThresholdSOL: floatFlag(c, "low-balance-priority-threshold-sol"),
		ReferenceSOLPriceUSD:           floatFlag(c, "reference-sol-price-usd"),
		MarketDataURL:                  stringFlag(c, "market-data-url"),
		GatewayURL:                     stringFlag(c, "gateway-url"),
		StatusListen:                   stringFlag(c, "status-listen"),
		Ledger:                         stringFlag(c, "ledger"),
	}
}

func stringFlag(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	v := c.String(name)
	return &v
}

func boolFlag(c *cli.Context, name string) *bool {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Bool(name)
	return &v
}

func floatFlag(c *cli.Context, name string) *float64 {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Float64(name)
	return &v
}

func intFlag(c *cli.Context, name string) *int {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Int(name)
	return &v
}

func uint64Flag(c *cli.Context, name string) *uint64 {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Uint64(name)
	return &v
}

// newLiveHarness wires cfg into an engine. The status server, when
// configured, stops with ctx
func newLiveHarness(ctx context.Context, cfg *config.Config) (*liveHarness, error) {
	settings, err := cfg.EngineSettings()
	if err != nil {
		return nil, err
	}
	rs, err := cfg.RiskSettings()
	if err != nil {
		return nil, err
	}
	pipeline, err := risk.NewPipelineFromSettings(rs)
	if err != nil {
		return nil, err
	}
	strategy, err := cfg.LoadStrategy()
	if err != nil {
		return nil, err
	}
	client, err := newChainClient(cfg)
	if err != nil {
		return nil, err
	}
	retrier := exchange.DefaultRetrier()
	if cfg.Execution.RetryAttempts > 0 {
		retrier.Attempts = cfg.Execution.RetryAttempts
	}
	executor, err := exchange.NewChainExecutor(client, retrier, submitLimiter(cfg.Execution.RequestsPerSecond))
	if err != nil {
		return nil, err
	}
	bt, err := engine.NewLive(settings, pipeline, executor, cfg.Execution.SlippageBps+cfg.Execution.FeeBps, strategy)
	if err != nil {
		return nil, err
	}
	if err := bt.SyncBalance(ctx, executor, cfg.Execution.MinBalance.InexactFloat64()); err != nil {
		return nil, err
	}
	overlay, err := newOverlay(cfg)
	if err != nil {
		return nil, err
	}
	if overlay != nil {
		bt.SetOverlay(overlay)
	}

	h := &liveHarness{engine: bt}
	bt.AddSink(engine.LogSink{})
	if addr := cfg.Status.Listen; addr != "" {
		h.status = status.New()
		if err := h.status.Start(ctx, addr); err != nil {
			return nil, err
		}
		bt.AddSink(h.status)
	}
	if path := cfg.Execution.Ledger; path != "" {
		if h.ledger, err = ledger.Open(path); err != nil {
			return nil, err
		}
		bt.SetLedger(h.ledger)
	}
	ws, err := live.NewWebsocket(cfg.MarketData.URL, settings.Symbol, settings.Interval)
	if err != nil {
		return nil, common.AppendError(err, h.close())
	}
	ws.MinBackoff = cfg.MarketData.MinBackoff
	ws.MaxBackoff = cfg.MarketData.MaxBackoff
	h.source = ws
	return h, nil
}

func newChainClient(cfg *config.Config) (chain.Client, error) {
	if cfg.Execution.DryRun {
		if _, err := config.LoadWallet(cfg.Execution.Wallet); err != nil {
			log.Warnf(log.Livetester, "dry run without a wallet: %v", err)
		}
		return chain.NewDryRun(cfg.Execution.StartingBalance.InexactFloat64(), cfg.Execution.SlippageBps, cfg.Execution.FeeBps), nil
	}
	wallet, err := config.LoadWallet(cfg.Execution.Wallet)
	if err != nil {
		return nil, fmt.Errorf("%w %w", errWalletRequired, err)
	}
	g, err := chain.NewGateway(cfg.Execution.GatewayURL, wallet, &http.Client{Timeout: defaultGatewayTimeout})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// submitLimiter spaces order submissions. A non-positive rate is unlimited
func submitLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return request.NewRateLimit(0, 0)
	}
	return request.NewRateLimit(time.Duration(float64(time.Second)/perSecond), 1)
}

// newOverlay returns nil when neither the sidecar nor the low balance cap is
// configured
func newOverlay(cfg *config.Config) (*sidecar.Overlay, error) {
	s := cfg.OverlaySettings()
	if !cfg.Sidecar.Enabled {
		if s.LowBalanceCapLamports == 0 {
			return nil, nil
		}
		return sidecar.NewOverlay(nil, s)
	}
	client, err := sidecar.NewClient(cfg.Sidecar.URL, &http.Client{})
	if err != nil {
		return nil, err
	}
	client.SetTimeout(cfg.Sidecar.Timeout)
	log.Infof(log.Sidecar, "advice from %s, bypassing [%s]", cfg.Sidecar.URL, strings.Join(s.BypassPriorities, ", "))
	return sidecar.NewOverlay(client, s)
}

func (h *liveHarness) run(ctx context.Context) error {
	err := h.engine.RunLive(ctx, h.source)
	return common.AppendError(err, h.close())
}

func (h *liveHarness) close() error {
	if h.ledger == nil {
		return nil
	}
	err := h.ledger.Close()
	h.ledger = nil
	return err
}
