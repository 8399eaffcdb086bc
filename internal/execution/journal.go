package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists trade fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		bundle_id   TEXT,
		strategy    TEXT NOT NULL,
		action      TEXT NOT NULL,
		asset       TEXT NOT NULL,
		mint        TEXT,
		size_sol    REAL NOT NULL,
		price       REAL NOT NULL,
		success     INTEGER NOT NULL,
		reason      TEXT,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
	CREATE INDEX IF NOT EXISTS idx_trades_asset ON trades(asset);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists an execution outcome to the journal.
func (j *Journal) RecordFill(req Request, out Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	success := 0
	if out.Success {
		success = 1
	}
	filledAt := out.FilledAt
	if filledAt.IsZero() {
		filledAt = time.Now()
	}

	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, bundle_id, strategy, action, asset, mint, size_sol, price, success, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.OrderID,
		out.BundleID,
		req.StrategyID,
		string(req.Action),
		req.Asset,
		req.Mint,
		out.FilledSize,
		out.Price,
		success,
		req.Reason,
		filledAt.Format(time.RFC3339),
	)
	return err
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID       int64   `json:"id"`
	OrderID  string  `json:"order_id"`
	BundleID string  `json:"bundle_id"`
	Strategy string  `json:"strategy"`
	Action   string  `json:"action"`
	Asset    string  `json:"asset"`
	Mint     string  `json:"mint"`
	SizeSOL  float64 `json:"size_sol"`
	Price    float64 `json:"price"`
	Success  bool    `json:"success"`
	Reason   string  `json:"reason"`
	FilledAt string  `json:"filled_at"`
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, COALESCE(bundle_id, ''), strategy, action, asset, COALESCE(mint, ''), size_sol, price, success, COALESCE(reason, ''), filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var success int
		if err := rows.Scan(&t.ID, &t.OrderID, &t.BundleID, &t.Strategy, &t.Action,
			&t.Asset, &t.Mint, &t.SizeSOL, &t.Price, &success, &t.Reason, &t.FilledAt); err != nil {
			continue
		}
		t.Success = success == 1
		trades = append(trades, t)
	}
	return trades, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
