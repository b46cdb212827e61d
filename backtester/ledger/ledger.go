package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	// import sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/log"
)

// Open picks the store from the extension: .db, .sqlite and .sqlite3 open a
// sqlite database, anything else an NDJSON file
func Open(path string) (Writer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path)
	default:
		return OpenNDJSON(path)
	}
}

// OpenNDJSON opens path for appending
func OpenNDJSON(path string) (*NDJSON, error) {
	if path == "" {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, errEmptyPath)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	log.Infof(log.Ledger, "appending fills to %s", path)
	return &NDJSON{enc: json.NewEncoder(f), closer: f}, nil
}

// NewNDJSON writes to w
func NewNDJSON(w io.Writer) *NDJSON {
	n := &NDJSON{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		n.closer = c
	}
	return n
}

// Record appends the fill's ledger record
func (n *NDJSON) Record(f *fill.Fill) error {
	if f == nil {
		return common.ErrNilArguments
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errLedgerClosed
	}
	return n.enc.Encode(f.ToRecord())
}

// Close closes the underlying file
func (n *NDJSON) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if n.closer == nil {
		return nil
	}
	return n.closer.Close()
}

// ReadNDJSON decodes every record in r
func ReadNDJSON(r io.Reader) ([]fill.Record, error) {
	dec := json.NewDecoder(r)
	var resp []fill.Record
	for {
		var rec fill.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return resp, nil
		}
		if err != nil {
			return resp, err
		}
		resp = append(resp, rec)
	}
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, errEmptyPath)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(createFillsTable); err != nil {
		return nil, common.AppendError(fmt.Errorf("%w %w", common.ErrConfiguration, err), db.Close())
	}
	stmt, err := db.Prepare(insertFill)
	if err != nil {
		return nil, common.AppendError(fmt.Errorf("%w %w", common.ErrConfiguration, err), db.Close())
	}
	log.Infof(log.Ledger, "recording fills in sqlite database %s", path)
	return &SQLite{db: db, insert: stmt}, nil
}

// Record inserts the fill
func (s *SQLite) Record(f *fill.Fill) error {
	if f == nil {
		return common.ErrNilArguments
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errLedgerClosed
	}
	r := f.ToRecord()
	_, err := s.insert.Exec(f.OrderID, r.Timestamp.Format(time.RFC3339Nano), r.Symbol, string(r.Side),
		r.Qty.String(), r.Price.String(), r.Fee.String(), f.RationaleTag)
	return err
}

// Fills reads the stored records in insertion order
func (s *SQLite) Fills(ctx context.Context) ([]fill.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errLedgerClosed
	}
	rows, err := s.db.QueryContext(ctx, selectFills)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var resp []fill.Record
	for rows.Next() {
		var ts, side, qty, price, fee string
		var r fill.Record
		if err := rows.Scan(&ts, &r.Symbol, &side, &qty, &price, &fee); err != nil {
			return nil, err
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, err
		}
		if r.Side, err = common.ParseSide(side); err != nil {
			return nil, err
		}
		if r.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if r.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, err
		}
		resp = append(resp, r)
	}
	return resp, rows.Err()
}

// Close releases the statement and the database
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := common.AppendError(s.insert.Close(), s.db.Close())
	s.db = nil
	return err
}

// Record writes to every writer, continuing past failures
func (m Multi) Record(f *fill.Fill) error {
	var errs error
	for _, w := range m {
		errs = common.AppendError(errs, w.Record(f))
	}
	return errs
}

// Close closes every writer
func (m Multi) Close() error {
	var errs error
	for _, w := range m {
		errs = common.AppendError(errs, w.Close())
	}
	return errs
}
