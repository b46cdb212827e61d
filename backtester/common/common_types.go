package common

import (
	"errors"
)

// Side is the direction of a signal, order or fill
type Side string

// Sides understood by the harness. Flat is only meaningful on signals and
// asks for the existing position to be closed
const (
	Buy  Side = "buy"
	Sell Side = "sell"
	Flat Side = "flat"
)

// Rationale tags attached to signals and fills that were not produced by a
// strategy
const (
	TagStopLoss    = "stop_loss"
	TagTakeProfit  = "take_profit"
	TagEndOfStream = "end_of_stream"
)

// Process exit codes
const (
	ExitNormal        = 0
	ExitConfiguration = 1
	ExitRuntime       = 2
	ExitInterrupted   = 130
)

var (
	// ErrNilArguments is a common error response to highlight that nils were passed in
	// when they should not have been
	ErrNilArguments = errors.New("received nil argument(s)")
	// ErrConfiguration is returned for invalid parameters or unparseable config.
	// It is fatal at startup
	ErrConfiguration = errors.New("configuration error")
	// ErrData is returned for a malformed bar or a non-monotonic timestamp. The
	// bar is skipped and counted
	ErrData = errors.New("data error")
	// ErrStrategy is returned when a strategy or indicator receives input it
	// cannot process, such as a non-finite value. It is fatal
	ErrStrategy = errors.New("strategy error")
	// ErrExecution is a retryable execution failure
	ErrExecution = errors.New("execution error")
	// ErrExecutionFatal is returned once execution retries are exhausted
	ErrExecutionFatal = errors.New("fatal execution error")
	// ErrSidecar is returned for sidecar failures. They are logged and ignored
	ErrSidecar = errors.New("sidecar error")
	// ErrInterrupted is returned when a run is cancelled
	ErrInterrupted = errors.New("interrupted")
)
