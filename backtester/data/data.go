package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/log"
)

// Open opens a csv file. When symbol is empty it is taken from the file stem
func Open(path, symbol string) (*CSV, error) {
	if path == "" {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, errEmptyPath)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	if symbol == "" {
		symbol = kline.SymbolFromPath(path)
	}
	c, err := NewCSV(f, symbol)
	if err != nil {
		return nil, common.AppendError(err, f.Close())
	}
	c.source = f
	log.Debugf(log.DataMgr, "opened %s as %s", path, symbol)
	return c, nil
}

// NewCSV reads the header from r and returns a provider for the rows after it
func NewCSV(r io.Reader, symbol string) (*CSV, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w reading csv header: %w", common.ErrConfiguration, err)
	}
	columns := make(map[string]int, len(header))
	for i := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))] = i
	}
	for _, c := range Columns {
		if _, ok := columns[c]; !ok {
			return nil, fmt.Errorf("%w %w %q", common.ErrConfiguration, errMissingColumn, c)
		}
	}
	reader.FieldsPerRecord = len(header)
	return &CSV{symbol: symbol, reader: reader, columns: columns, row: 1}, nil
}

// Symbol returns the symbol attached to every bar
func (c *CSV) Symbol() string {
	return c.symbol
}

// Next parses the next row
func (c *CSV) Next() (kline.Bar, error) {
	if c.closed {
		return kline.Bar{}, errProviderClosed
	}
	record, err := c.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return kline.Bar{}, io.EOF
		}
		c.row++
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return kline.Bar{}, fmt.Errorf("%w row %d: %w", common.ErrData, c.row, err)
		}
		return kline.Bar{}, err
	}
	c.row++
	b := kline.Bar{Symbol: c.symbol}
	b.Timestamp, err = ParseTimestamp(record[c.columns["timestamp"]])
	if err != nil {
		return kline.Bar{}, fmt.Errorf("%w row %d: %w", common.ErrData, c.row, err)
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open},
		{"high", &b.High},
		{"low", &b.Low},
		{"close", &b.Close},
		{"volume", &b.Volume},
	} {
		raw := strings.TrimSpace(record[c.columns[f.name]])
		*f.dst, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return kline.Bar{}, fmt.Errorf("%w row %d %s %w %q", common.ErrData, c.row, f.name, errInvalidField, raw)
		}
	}
	return b, nil
}

// Close releases the underlying file
func (c *CSV) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.source == nil {
		return nil
	}
	return c.source.Close()
}

// ParseTimestamp accepts RFC3339 or integer epoch milliseconds
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errInvalidTimestamp
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", errInvalidTimestamp, s)
	}
	return t.UTC(), nil
}

// NewMemory returns a provider over a copy of bars
func NewMemory(bars ...kline.Bar) *Memory {
	resp := make([]kline.Bar, len(bars))
	copy(resp, bars)
	return &Memory{bars: resp}
}

// Next returns the next bar
func (m *Memory) Next() (kline.Bar, error) {
	if m.offset >= len(m.bars) {
		return kline.Bar{}, io.EOF
	}
	m.offset++
	return m.bars[m.offset-1], nil
}

// Close is a no-op
func (m *Memory) Close() error {
	return nil
}

// Reset rewinds the stream
func (m *Memory) Reset() {
	m.offset = 0
}

// Len returns the number of bars held
func (m *Memory) Len() int {
	return len(m.bars)
}
