package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/engine"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/risk"
	"github.com/solquant/harness/backtester/eventhandlers/strategies"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/sidecar"
	"github.com/solquant/harness/log"
	"github.com/spf13/viper"
)

// Load reads a TOML config from path. Environment variables prefixed with
// HARNESS_ override file values, e.g. HARNESS_EXECUTION_GATEWAY_URL
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w %w: %s", common.ErrConfiguration, errConfigNotFound, path)
		}
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w reading %s: %w", common.ErrConfiguration, path, err)
	}
	log.Infof(log.ConfigMgr, "loaded config %s", path)
	return decode(v)
}

// Read parses a TOML config from r
func Read(r io.Reader) (*Config, error) {
	if r == nil {
		return nil, common.ErrNilArguments
	}
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	return decode(v)
}

// Default returns the config produced by an empty file
func Default() (*Config, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("strategy.name", "momentum")
	v.SetDefault("strategy.symbol", "SOL/USDC")
	v.SetDefault("strategy.interval", "1m")

	v.SetDefault("market_data.url", "")
	v.SetDefault("market_data.min_backoff", "1s")
	v.SetDefault("market_data.max_backoff", "30s")
	v.SetDefault("market_data.timeout", "0s")

	v.SetDefault("execution.dry_run", false)
	v.SetDefault("execution.wallet", DefaultWalletPath)
	v.SetDefault("execution.gateway_url", "")
	v.SetDefault("execution.starting_balance", "10000")
	v.SetDefault("execution.min_balance", "0")
	v.SetDefault("execution.slippage_bps", engine.DefaultSlippageBps)
	v.SetDefault("execution.fee_bps", engine.DefaultFeeBps)
	v.SetDefault("execution.requests_per_second", 5.0)
	v.SetDefault("execution.retry_attempts", 5)
	v.SetDefault("execution.notional_cap", "0")
	v.SetDefault("execution.ledger", "")

	v.SetDefault("risk.stop_loss_pct", 0.05)
	v.SetDefault("risk.profit_targets", "0.10:1")
	v.SetDefault("risk.max_positions", 1)
	v.SetDefault("risk.min_confidence", 0.0)
	v.SetDefault("risk.kelly_multiplier", 0.0)
	v.SetDefault("risk.kelly_min_trades", 10)
	v.SetDefault("risk.max_position_pct", 0.0)

	v.SetDefault("sidecar.enabled", false)
	v.SetDefault("sidecar.url", "")
	v.SetDefault("sidecar.timeout", sidecar.DefaultTimeout.String())
	v.SetDefault("sidecar.max_multiplier", sidecar.DefaultMaxMultiplier)
	v.SetDefault("sidecar.max_confidence_delta", sidecar.DefaultMaxConfidenceDelta)
	v.SetDefault("sidecar.min_guidance_score", sidecar.DefaultMinGuidanceScore)
	v.SetDefault("sidecar.bypass_priorities", []string{})
	v.SetDefault("sidecar.low_balance_priority_cap_lamports", 0)
	v.SetDefault("sidecar.low_balance_priority_threshold_sol", 0.0)
	v.SetDefault("sidecar.reference_sol_price_usd", 0.0)

	v.SetDefault("status.interval_secs", DefaultStatusIntervalSecs)
	v.SetDefault("status.listen", "")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	c.Sidecar.BypassPriorities = cleanPriorities(c.Sidecar.BypassPriorities)
	return &c, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook lets money values be written as TOML strings or numbers
func decimalHook(_, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch d := data.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(d))
	case float64:
		return decimal.NewFromFloat(d), nil
	case int64:
		return decimal.NewFromInt(d), nil
	case int:
		return decimal.NewFromInt(int64(d)), nil
	}
	return data, nil
}

// Validate checks every setting a live run depends on
func (c *Config) Validate() error {
	if err := c.validateStrategy(); err != nil {
		return err
	}
	if err := c.validateExecution(); err != nil {
		return err
	}
	if c.MarketData.URL == "" {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errMarketDataURLUnset)
	}
	if c.MarketData.Timeout < 0 || c.Status.IntervalSecs < 0 {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errInvalidInterval)
	}
	rs, err := c.RiskSettings()
	if err != nil {
		return err
	}
	if _, err = risk.NewPipelineFromSettings(rs); err != nil {
		return err
	}
	if c.Sidecar.Enabled && c.Sidecar.URL == "" {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errSidecarURLUnset)
	}
	_, err = sidecar.NewOverlay(nil, c.OverlaySettings())
	return err
}

func (c *Config) validateStrategy() error {
	if strings.TrimSpace(c.Strategy.Symbol) == "" {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errEmptySymbol)
	}
	_, err := c.LoadStrategy()
	return err
}

func (c *Config) validateExecution() error {
	e := &c.Execution
	if e.SlippageBps < 0 || e.FeeBps < 0 {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errNegativeCost)
	}
	if e.StartingBalance.IsNegative() || e.MinBalance.IsNegative() || e.NotionalCap.IsNegative() {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errNegativeBalance)
	}
	if !e.DryRun && e.GatewayURL == "" {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errGatewayURLUnset)
	}
	return nil
}

// LoadStrategy builds the configured strategy with its custom settings
func (c *Config) LoadStrategy() (strategies.Handler, error) {
	interval, err := kline.ParseIntervalStrict(c.Strategy.Interval)
	if err != nil {
		return nil, err
	}
	h, err := strategies.LoadStrategyByName(c.Strategy.Name, c.Strategy.Symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("%w %w %q: %w", common.ErrConfiguration, errUnknownStrategy, c.Strategy.Name, err)
	}
	if len(c.Strategy.Custom) > 0 {
		if err := h.SetCustomSettings(c.Strategy.Custom); err != nil {
			return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
		}
	}
	return h, nil
}

// RiskSettings converts the risk section for the pipeline builder
func (c *Config) RiskSettings() (*risk.Settings, error) {
	targets, err := ParseProfitTargets(c.Risk.ProfitTargets)
	if err != nil {
		return nil, err
	}
	return &risk.Settings{
		StopLossPct:     c.Risk.StopLossPct,
		ProfitTargets:   targets,
		MaxPositions:    c.Risk.MaxPositions,
		MinConfidence:   c.Risk.MinConfidence,
		KellyMultiplier: c.Risk.KellyMultiplier,
		KellyMinTrades:  c.Risk.KellyMinTrades,
		MaxPositionPct:  c.Risk.MaxPositionPct,
	}, nil
}

// OverlaySettings converts the sidecar section
func (c *Config) OverlaySettings() sidecar.Settings {
	return sidecar.Settings{
		MaxMultiplier:          c.Sidecar.MaxMultiplier,
		MaxConfidenceDelta:     c.Sidecar.MaxConfidenceDelta,
		MinGuidanceScore:       c.Sidecar.MinGuidanceScore,
		BypassPriorities:       append([]string(nil), c.Sidecar.BypassPriorities...),
		LowBalanceCapLamports:  c.Sidecar.LowBalancePriorityCapLamports,
		LowBalanceThresholdSOL: c.Sidecar.LowBalancePriorityThresholdSOL,
		ReferenceSOLPriceUSD:   c.Sidecar.ReferenceSOLPriceUSD,
	}
}

// EngineSettings converts the config into engine settings for a live run
func (c *Config) EngineSettings() (*engine.Settings, error) {
	interval, err := kline.ParseIntervalStrict(c.Strategy.Interval)
	if err != nil {
		return nil, err
	}
	return &engine.Settings{
		Symbol:          c.Strategy.Symbol,
		StrategyName:    strings.ToLower(c.Strategy.Name),
		Interval:        interval,
		StartingBalance: c.Execution.StartingBalance.InexactFloat64(),
		SlippageBps:     c.Execution.SlippageBps,
		FeeBps:          c.Execution.FeeBps,
		NotionalCap:     c.Execution.NotionalCap.InexactFloat64(),
		StatusInterval:  time.Duration(c.Status.IntervalSecs) * time.Second,
		LiveDataTimeout: c.MarketData.Timeout,
	}, nil
}

// ApplyOverrides merges command line values over the file values
func (c *Config) ApplyOverrides(o *LiveOverrides) error {
	if o == nil {
		return nil
	}
	setString(&c.Execution.Wallet, o.Wallet)
	setBool(&c.Execution.DryRun, o.DryRun)
	if o.MinBalance != nil {
		c.Execution.MinBalance = decimal.NewFromFloat(*o.MinBalance)
	}
	setFloat(&c.Risk.MaxPositionPct, o.MaxPositionPct)
	setInt(&c.Risk.MaxPositions, o.MaxPositions)
	if o.ProfitTargets != nil {
		if _, err := ParseProfitTargets(*o.ProfitTargets); err != nil {
			return err
		}
		c.Risk.ProfitTargets = *o.ProfitTargets
	}
	setFloat(&c.Risk.StopLossPct, o.StopLossPct)
	setFloat(&c.Risk.KellyMultiplier, o.KellyMultiplier)
	setFloat(&c.Risk.MinConfidence, o.MinConfidence)
	setInt(&c.Status.IntervalSecs, o.StatusIntervalSecs)
	setBool(&c.Sidecar.Enabled, o.EnableSidecar)
	setString(&c.Sidecar.URL, o.SidecarURL)
	setFloat(&c.Sidecar.MaxMultiplier, o.OverrideMaxMultiplier)
	setFloat(&c.Sidecar.MaxConfidenceDelta, o.OverrideMaxConfidenceDelta)
	setFloat(&c.Sidecar.MinGuidanceScore, o.OverrideMinGuidanceScore)
	if o.OverrideBypassPriorities != nil {
		c.Sidecar.BypassPriorities = ParseBypassPriorities(*o.OverrideBypassPriorities)
	}
	if o.LowBalancePriorityCapLamports != nil {
		c.Sidecar.LowBalancePriorityCapLamports = *o.LowBalancePriorityCapLamports
	}
	setFloat(&c.Sidecar.LowBalancePriorityThresholdSOL, o.LowBalancePriorityThresholdSOL)
	setFloat(&c.Sidecar.ReferenceSOLPriceUSD, o.ReferenceSOLPriceUSD)
	setString(&c.MarketData.URL, o.MarketDataURL)
	setString(&c.Execution.GatewayURL, o.GatewayURL)
	setString(&c.Status.Listen, o.StatusListen)
	setString(&c.Execution.Ledger, o.Ledger)
	return nil
}

func setString(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst, src *int) {
	if src != nil {
		*dst = *src
	}
}

// ParseProfitTargets parses a ladder such as "0.05:0.5,0.10:0.5". An empty
// string disables take profit
func ParseProfitTargets(s string) ([]risk.Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	targets := make([]risk.Target, 0, len(parts))
	for _, p := range parts {
		trigger, fraction, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok {
			return nil, fmt.Errorf("%w %w: %q", common.ErrConfiguration, errInvalidTarget, p)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(trigger), 64)
		if err != nil {
			return nil, fmt.Errorf("%w %w: %q: %w", common.ErrConfiguration, errInvalidTarget, p, err)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(fraction), 64)
		if err != nil {
			return nil, fmt.Errorf("%w %w: %q: %w", common.ErrConfiguration, errInvalidTarget, p, err)
		}
		targets = append(targets, risk.Target{TriggerPct: t, CloseFraction: f})
	}
	return targets, nil
}

// ParseBypassPriorities splits a comma separated list of rationale tags
func ParseBypassPriorities(s string) []string {
	return cleanPriorities(strings.Split(s, ","))
}

func cleanPriorities(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadWallet reads the public wallet address from a JSON file of the form
// {"address": "..."}. Keypair files are refused
func LoadWallet(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w wallet %w", common.ErrConfiguration, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return "", fmt.Errorf("%w %s: %w", common.ErrConfiguration, path, errWalletKeyMaterial)
	}
	for _, key := range []string{"address", "pubkey"} {
		addr, err := jsonparser.GetString(data, key)
		if err == nil && addr != "" {
			return addr, nil
		}
	}
	return "", fmt.Errorf("%w %s: %w", common.ErrConfiguration, path, errWalletAddressUnset)
}

// PrintSetting logs the effective settings
func (c *Config) PrintSetting() {
	log.Info(log.ConfigMgr, "------------------Strategy Settings--------------------------")
	log.Infof(log.ConfigMgr, "Strategy: %s on %s %s", c.Strategy.Name, c.Strategy.Symbol, c.Strategy.Interval)
	if len(c.Strategy.Custom) > 0 {
		for k, v := range c.Strategy.Custom {
			log.Infof(log.ConfigMgr, "%s: %v", k, v)
		}
	} else {
		log.Info(log.ConfigMgr, "Custom strategy variables: unset")
	}
	log.Info(log.ConfigMgr, "------------------Execution Settings-------------------------")
	log.Infof(log.ConfigMgr, "Dry run: %v", c.Execution.DryRun)
	log.Infof(log.ConfigMgr, "Gateway: %s", c.Execution.GatewayURL)
	log.Infof(log.ConfigMgr, "Minimum balance: %s", c.Execution.MinBalance)
	log.Infof(log.ConfigMgr, "Slippage %.2f bps, fee %.2f bps", c.Execution.SlippageBps, c.Execution.FeeBps)
	if c.Execution.Ledger != "" {
		log.Infof(log.ConfigMgr, "Ledger: %s", c.Execution.Ledger)
	}
	log.Info(log.ConfigMgr, "------------------Risk Settings------------------------------")
	log.Infof(log.ConfigMgr, "%+v", c.Risk)
	if c.Sidecar.Enabled {
		log.Info(log.ConfigMgr, "------------------Sidecar Settings---------------------------")
		log.Infof(log.ConfigMgr, "URL: %s", c.Sidecar.URL)
		log.Infof(log.ConfigMgr, "Max multiplier %.2f, max confidence delta %.2f, min guidance %.2f",
			c.Sidecar.MaxMultiplier, c.Sidecar.MaxConfidenceDelta, c.Sidecar.MinGuidanceScore)
		log.Infof(log.ConfigMgr, "Bypass priorities: %v", c.Sidecar.BypassPriorities)
		if c.Sidecar.LowBalancePriorityCapLamports > 0 {
			log.Infof(log.ConfigMgr, "Low balance cap %d lamports below %.4f SOL at %.2f USD",
				c.Sidecar.LowBalancePriorityCapLamports, c.Sidecar.LowBalancePriorityThresholdSOL, c.Sidecar.ReferenceSOLPriceUSD)
		}
	}
	log.Infof(log.ConfigMgr, "Status every %ds on %q", c.Status.IntervalSecs, c.Status.Listen)
}
