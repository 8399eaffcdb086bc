package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"soltrader/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// StateStore persists the controller state as a single JSON document.
// Reads load the whole document; writes replace it. The engine is the
// only writer, so one row with last-write-wins is enough.
type StateStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewStateStore opens (or creates) the state database.
func NewStateStore(dbPath string) (*StateStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer, keep the pool at one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS state (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		data       TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened state store at %s", dbPath)
	return &StateStore{db: db}, nil
}

// Load reads the stored state document. Returns a fresh default state
// when the store is empty or the stored document does not parse.
func (s *StateStore) Load() (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM state WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return model.DefaultState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite load state: %w", err)
	}

	var st model.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		log.Printf("[sqlite] state document corrupt, starting fresh: %v", err)
		return model.DefaultState(), nil
	}
	return &st, nil
}

// Save replaces the stored state document.
func (s *StateStore) Save(st *model.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO state (id, data, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("sqlite save state: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for health probes.
func (s *StateStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *StateStore) Close() error {
	return s.db.Close()
}
