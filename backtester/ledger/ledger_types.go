package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/solquant/harness/backtester/eventtypes/fill"
)

const createFillsTable = `CREATE TABLE IF NOT EXISTS fills (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty TEXT NOT NULL,
	price TEXT NOT NULL,
	fee TEXT NOT NULL,
	rationale_tag TEXT NOT NULL DEFAULT ''
)`

const insertFill = `INSERT INTO fills (order_id, timestamp, symbol, side, qty, price, fee, rationale_tag) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const selectFills = `SELECT timestamp, symbol, side, qty, price, fee FROM fills ORDER BY id`

var (
	errEmptyPath    = errors.New("ledger path is empty")
	errLedgerClosed = errors.New("ledger is closed")
)

// Writer persists fills in execution order
type Writer interface {
	Record(*fill.Fill) error
	Close() error
}

// NDJSON appends one json record per fill
type NDJSON struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	closed bool
}

// SQLite stores fills in a sqlite database
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	insert *sql.Stmt
}

// Multi fans a fill out to several writers
type Multi []Writer
