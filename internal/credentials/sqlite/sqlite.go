package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/credentials"
)

// Store implements credentials.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ credentials.Store = (*Store)(nil)

// New opens (or creates) a SQLite credential store at the supplied path.
// The file is created with owner-only permissions.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credentials directory: %w", err)
	}
	if f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600); err == nil {
		_ = f.Close()
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
CREATE TABLE IF NOT EXISTS provider_credentials (
	provider TEXT PRIMARY KEY,
	secret TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
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
	err := s.db.QueryRowContext(ctx, `SELECT secret FROM provider_credentials WHERE provider = ?`, string(p)).Scan(&secret)
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
	_, err := s.db.ExecContext(ctx, `
INSERT INTO provider_credentials (provider, secret, updated_at) VALUES (?, ?, ?)
ON CONFLICT(provider) DO UPDATE SET secret = excluded.secret, updated_at = excluded.updated_at`,
		string(p), key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, p chat.Provider) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM provider_credentials WHERE provider = ?`, string(p)); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *Store) Providers(ctx context.Context) ([]chat.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider FROM provider_credentials ORDER BY provider`)
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
