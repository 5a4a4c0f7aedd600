package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ ledger.Store         = (*Store)(nil)
	_ ledger.BatchRecorder = (*Store)(nil)
)

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS session_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	surface TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL CHECK(outcome IN ('completed','cancelled','failed')),
	fragments INTEGER NOT NULL DEFAULT 0,
	output_chars INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_entries_finished ON session_entries(finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_session_entries_provider ON session_entries(provider);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// PingContext verifies the database is reachable.
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record inserts a new session entry.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return insert(ctx, s.db, entry)
}

// RecordBatch inserts entries in a single transaction.
func (s *Store) RecordBatch(ctx context.Context, entries []ledger.Entry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := insert(ctx, tx, e); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", e.SessionID, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, e ledger.Entry) error {
	e = e.Stamped()
	_, err := db.ExecContext(ctx, `
INSERT INTO session_entries(session_id, surface, provider, model, outcome, fragments, output_chars, error, started_at, finished_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID,
		e.Surface,
		string(e.Provider),
		e.Model,
		string(e.Outcome),
		e.Fragments,
		e.OutputChars,
		e.Error,
		e.StartedAt.UTC(),
		e.FinishedAt.UTC(),
	)
	return err
}

// where renders the filter as a WHERE clause with positional arguments.
func where(f ledger.Filter) (string, []any) {
	var conds []string
	var args []any
	if len(f.Providers) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.Providers)), ",")
		conds = append(conds, "provider IN ("+marks+")")
		for _, p := range f.Providers {
			args = append(args, string(p))
		}
	}
	if f.Surface != "" {
		conds = append(conds, "surface = ?")
		args = append(args, f.Surface)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Summary returns aggregated outcomes for the filter.
func (s *Store) Summary(ctx context.Context, f ledger.Filter) (ledger.Summary, error) {
	clause, args := where(f)
	row := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN outcome='completed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome='cancelled' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome='failed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(output_chars), 0)
FROM session_entries `+clause, args...)

	var sum ledger.Summary
	if err := row.Scan(&sum.Sessions, &sum.Completed, &sum.Cancelled, &sum.Failed, &sum.OutputChars); err != nil {
		return ledger.Summary{}, err
	}
	return sum, nil
}

// ListRecent returns the latest entries, newest first.
func (s *Store) ListRecent(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = ledger.DefaultLimit
	}
	clause, args := where(f)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, surface, provider, model, outcome, fragments, output_chars, error, started_at, finished_at
FROM session_entries `+clause+`
ORDER BY finished_at DESC, id DESC
LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var provider, outcome string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Surface, &provider, &e.Model, &outcome,
			&e.Fragments, &e.OutputChars, &e.Error, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, err
		}
		e.Provider = chat.Provider(provider)
		e.Outcome = ledger.Outcome(outcome)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
