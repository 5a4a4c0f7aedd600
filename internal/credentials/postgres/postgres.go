package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/credentials"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "provider_credentials"

// Config configures the Postgres credential store.
type Config struct {
	DSN   string
	Table string // optional, may be schema-qualified ("app.credentials")
}

// Store implements credentials.Store backed by Postgres.
type Store struct {
	db    *sql.DB
	table string // quoted identifier
}

var _ credentials.Store = (*Store)(nil)

// New opens a Postgres-backed credential store.
func New(cfg Config) (*Store, error) {
	table, err := quoteTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	s := &Store{db: db, table: table}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// quoteTable quotes each dot-separated part of a table name.
func quoteTable(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTable
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("postgres: invalid table name %q", name)
	}
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("postgres: invalid table name %q", name)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}

func (s *Store) initSchema() error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	provider TEXT PRIMARY KEY,
	secret TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`, s.table)
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// PingContext verifies the database is reachable.
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, p chat.Provider) (string, error) {
	var secret string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT secret FROM %s WHERE provider = $1`, s.table), string(p)).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", credentials.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}
	return secret, nil
}

func (s *Store) Set(ctx context.Context, p chat.Provider, key string) error {
	if err := credentials.Validate(p, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (provider, secret, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (provider) DO UPDATE SET secret = EXCLUDED.secret, updated_at = EXCLUDED.updated_at`, s.table),
		string(p), key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, p chat.Provider) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE provider = $1`, s.table), string(p)); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *Store) Providers(ctx context.Context) ([]chat.Provider, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT provider FROM %s ORDER BY provider`, s.table))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []chat.Provider
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, chat.Provider(p))
	}
	return out, rows.Err()
}
