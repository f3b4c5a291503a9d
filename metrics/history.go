package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"anycoder/logger"

	_ "modernc.org/sqlite"
)

// Outcome classifies a finished autocomplete
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeDegraded       Outcome = "degraded" // applied, but the response carried no cursor token
	OutcomeParseError     Outcome = "parse_error"
	OutcomeBoundsError    Outcome = "bounds_error"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeCanceled       Outcome = "canceled"
	OutcomeError          Outcome = "error"
)

// Entry is one autocomplete attempt
type Entry struct {
	Path      string
	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome
	Edits     int
}

const historySchema = `
CREATE TABLE IF NOT EXISTS completions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    started_at INTEGER NOT NULL,      -- UnixNano
    duration_ms INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    edits INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_completions_started_at ON completions(started_at);
`

// History stores autocomplete outcomes in a SQLite database
type History struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// OpenHistory opens (or creates) the history database at path
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Debug("history: opened %s", path)
	return &History{db: db}, nil
}

// Record stores one entry
func (h *History) Record(e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("history is closed")
	}

	_, err := h.db.Exec(
		`INSERT INTO completions (path, started_at, duration_ms, outcome, edits) VALUES (?, ?, ?, ?, ?)`,
		e.Path, e.StartedAt.UnixNano(), e.Duration.Milliseconds(), string(e.Outcome), e.Edits,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (h *History) Recent(limit int) ([]Entry, error) {
	rows, err := h.db.Query(
		`SELECT path, started_at, duration_ms, outcome, edits FROM completions
		 ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedAt, durationMs int64
		var outcome string
		if err := rows.Scan(&e.Path, &startedAt, &durationMs, &outcome, &e.Edits); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.StartedAt = time.Unix(0, startedAt)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.Outcome = Outcome(outcome)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary returns the number of entries per outcome
func (h *History) Summary() (map[Outcome]int, error) {
	rows, err := h.db.Query(`SELECT outcome, COUNT(*) FROM completions GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summary[Outcome(outcome)] = count
	}
	return summary, rows.Err()
}

// Close closes the database
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}
