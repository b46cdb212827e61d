package data

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/solquant/harness/backtester/eventtypes/kline"
)

// Columns is the required csv header
var Columns = []string{"timestamp", "open", "high", "low", "close", "volume"}

var (
	errEmptyPath        = errors.New("data path is empty")
	errMissingColumn    = errors.New("csv header is missing column")
	errInvalidTimestamp = errors.New("invalid timestamp")
	errInvalidField     = errors.New("invalid numeric field")
	errProviderClosed   = errors.New("provider is closed")
)

// Provider streams bars in file order. Next returns io.EOF once the stream
// is exhausted. Errors wrapping common.ErrData refer to a single skipped row
// and the stream may be read further
type Provider interface {
	Next() (kline.Bar, error)
	Close() error
}

// CSV reads bars from a csv source with a
// timestamp,open,high,low,close,volume header
type CSV struct {
	symbol  string
	source  io.Closer
	reader  *csv.Reader
	columns map[string]int
	row     int
	closed  bool
}

// Memory serves bars from a slice
type Memory struct {
	bars   []kline.Bar
	offset int
}
