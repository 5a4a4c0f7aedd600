package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/credentials"
)

func TestQuoteTable(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: `"provider_credentials"`},
		{in: "keys", want: `"keys"`},
		{in: "app.keys", want: `"app"."keys"`},
		{in: `we"ird`, want: `"we""ird"`},
		{in: "a..b", wantErr: true},
		{in: "a.b.c", wantErr: true},
	}
	for _, tt := range tests {
		got, err := quoteTable(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("quoteTable(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("quoteTable(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("quoteTable(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// setupTestStore connects to READR_TEST_POSTGRES_DSN or skips.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("READR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("READR_TEST_POSTGRES_DSN not set")
	}
	table := "creds_test_" + uuid.NewString()[:8]
	store, err := New(Config{DSN: dsn, Table: table})
	if err != nil {
		t.Skipf("Skipping test: cannot connect to database: %v", err)
	}
	t.Cleanup(func() {
		_, _ = store.db.Exec("DROP TABLE IF EXISTS " + store.table)
		_ = store.Close()
	})
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, chat.ProviderOpenAI); !errors.Is(err, credentials.ErrNotFound) {
		t.Fatalf("Get on empty store: %v", err)
	}
	if err := store.Set(ctx, chat.ProviderOpenAI, "sk-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, chat.ProviderOpenAI, "sk-2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if got := credentials.Lookup(ctx, store, chat.ProviderOpenAI); got != "sk-2" {
		t.Fatalf("Lookup = %q", got)
	}
	ps, err := store.Providers(ctx)
	if err != nil || len(ps) != 1 {
		t.Fatalf("Providers = %v, %v", ps, err)
	}
	if err := store.Delete(ctx, chat.ProviderOpenAI); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, chat.ProviderOpenAI); !errors.Is(err, credentials.ErrNotFound) {
		t.Fatalf("Get after Delete: %v", err)
	}
}
