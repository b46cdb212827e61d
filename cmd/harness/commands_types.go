package main

import (
	"errors"
	"time"

	"github.com/solquant/harness/backtester/data/live"
	"github.com/solquant/harness/backtester/engine"
	"github.com/solquant/harness/backtester/engine/status"
	"github.com/solquant/harness/backtester/ledger"
)

const defaultGatewayTimeout = 15 * time.Second

var (
	errUsage          = errors.New("expected <data_path> <timeframe> <strategy>")
	errWalletRequired = errors.New("a wallet address is required unless dry run is set")
)

// liveHarness is a wired live run waiting for its bar source
type liveHarness struct {
	engine *engine.BackTest
	status *status.Server
	ledger ledger.Writer
	source live.Source
}
