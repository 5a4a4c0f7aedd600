package postgres

import (
	"context"
	"database/sql/driver"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/ledger"
)

func TestWhere(t *testing.T) {
	clause, args := where(ledger.Filter{})
	if clause != "" || len(args) != 0 {
		t.Fatalf("empty filter = %q %v", clause, args)
	}

	clause, args = where(ledger.Filter{Providers: []chat.Provider{chat.ProviderOpenAI, chat.ProviderGemini}, Surface: "main"})
	if clause != "WHERE provider = ANY($1) AND surface = $2" {
		t.Fatalf("clause = %q", clause)
	}
	if len(args) != 2 {
		t.Fatalf("args = %v", args)
	}
	valuer, ok := args[0].(driver.Valuer)
	if !ok {
		t.Fatalf("providers arg %T is not a driver.Valuer", args[0])
	}
	v, err := valuer.Value()
	if err != nil {
		t.Fatalf("array value: %v", err)
	}
	if s, _ := v.(string); !strings.Contains(s, "openai") || !strings.Contains(s, "gemini") {
		t.Fatalf("array literal = %v", v)
	}
}

func TestStoreRecordAndSummary(t *testing.T) {
	dsn := os.Getenv("READR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("READR_TEST_POSTGRES_DSN not set")
	}
	store, err := New(Config{DSN: dsn, MaxOpenConns: 4})
	if err != nil {
		t.Skipf("Skipping test: cannot connect to database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	surface := "test-" + uuid.NewString()[:8]
	now := time.Now().UTC()
	for i, outcome := range []ledger.Outcome{ledger.OutcomeCompleted, ledger.OutcomeFailed} {
		if err := store.Record(ctx, ledger.Entry{
			SessionID:   uuid.NewString(),
			Surface:     surface,
			Provider:    chat.ProviderOpenAI,
			Outcome:     outcome,
			OutputChars: 10,
			StartedAt:   now.Add(-time.Second),
			FinishedAt:  now.Add(time.Duration(i) * time.Millisecond),
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	sum, err := store.Summary(ctx, ledger.Filter{Surface: surface, Providers: []chat.Provider{chat.ProviderOpenAI}})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Sessions != 2 || sum.Completed != 1 || sum.Failed != 1 || sum.OutputChars != 20 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	recent, err := store.ListRecent(ctx, ledger.Filter{Surface: surface, Limit: 1})
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 1 || recent[0].Outcome != ledger.OutcomeFailed {
		t.Fatalf("unexpected entries %#v", recent)
	}
}
