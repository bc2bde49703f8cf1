package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    name TEXT,
    outcome TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name);
`

// SQLiteStore keeps records in a SQLite database file. Records are stored
// whole as JSON next to the columns used for listing. Without an explicit
// path the database lives in a temp directory created on first use.
type SQLiteStore struct {
	mu   sync.Mutex
	path string
	db   *sql.DB
}

// NewSQLiteStore creates a store backed by the database at path. The
// file and its directory are created on first use.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Save inserts or replaces a record.
func (s *SQLiteStore) Save(rec *Record) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling run %s: %w", rec.ID, err)
	}
	_, err = db.Exec(`
		INSERT OR REPLACE INTO runs (id, kind, name, outcome, started_at, duration_ns, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), rec.Name, string(rec.Outcome),
		rec.StartedAt.UnixNano(), int64(rec.Duration), string(data))
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.ID, err)
	}
	return nil
}

// Load reads a record back. Unknown IDs yield ErrNotFound.
func (s *SQLiteStore) Load(runID string) (*Record, error) {
	if runID == "" {
		return nil, fmt.Errorf("loading %q: %w", runID, ErrNotFound)
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	var data string
	err = db.QueryRow(`SELECT record FROM runs WHERE id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loading %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return decodeRecord(runID, data)
}

// Recent returns up to n records, newest start time first.
func (s *SQLiteStore) Recent(n int) ([]*Record, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT id, record FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(id, data)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Path returns the database file, opening it if needed.
func (s *SQLiteStore) Path() (string, error) {
	if _, err := s.open(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path, nil
}

// Close releases the database handle. The store reopens on next use.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) open() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	if s.path == "" {
		dir, err := os.MkdirTemp("", "shellout-runs-*")
		if err != nil {
			return nil, fmt.Errorf("creating run directory: %w", err)
		}
		s.path = filepath.Join(dir, "runs.db")
	} else if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	// Several shellout processes may share one database.
	dsn := s.path
	if strings.Contains(dsn, "?") {
		dsn += "&_pragma=busy_timeout(5000)"
	} else {
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	s.db = db
	return db, nil
}

func decodeRecord(runID, data string) (*Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshalling run %s: %w", runID, err)
	}
	return &rec, nil
}
