package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ ledger.Store         = (*Store)(nil)
	_ ledger.BatchRecorder = (*Store)(nil)
)

// Config carries the DSN and connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// New opens a PostgreSQL-backed ledger store.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
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
	id BIGSERIAL PRIMARY KEY,
	session_id UUID NOT NULL,
	surface TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL CHECK(outcome IN ('completed','cancelled','failed')),
	fragments BIGINT NOT NULL DEFAULT 0,
	output_chars BIGINT NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_session_entries_finished ON session_entries(finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_session_entries_provider ON session_entries(provider, finished_at DESC);
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
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.SessionID,
		e.Surface,
		string(e.Provider),
		e.Model,
		string(e.Outcome),
		e.Fragments,
		e.OutputChars,
		e.Error,
		e.StartedAt,
		e.FinishedAt,
	)
	return err
}

// where renders the filter with numbered placeholders starting at $1.
func where(f ledger.Filter) (string, []any) {
	var conds []string
	var args []any
	if len(f.Providers) > 0 {
		args = append(args, pq.Array(ledger.ProviderStrings(f.Providers)))
		conds = append(conds, fmt.Sprintf("provider = ANY($%d)", len(args)))
	}
	if f.Surface != "" {
		args = append(args, f.Surface)
		conds = append(conds, fmt.Sprintf("surface = $%d", len(args)))
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
	COUNT(*) FILTER (WHERE outcome = 'completed'),
	COUNT(*) FILTER (WHERE outcome = 'cancelled'),
	COUNT(*) FILTER (WHERE outcome = 'failed'),
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
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, session_id::text, surface, provider, model, outcome, fragments, output_chars, error, started_at, finished_at
FROM session_entries %s
ORDER BY finished_at DESC, id DESC
LIMIT $%d`, clause, len(args)), args...)
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
