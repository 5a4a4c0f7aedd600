package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/altic/readr/internal/chat"
)

type failingStore struct{ *Memory }

func (f *failingStore) Get(context.Context, chat.Provider) (string, error) {
	return "", errors.New("keychain locked")
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, chat.ProviderOpenAI); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: %v, want ErrNotFound", err)
	}
	if err := m.Set(ctx, chat.ProviderOpenAI, "sk-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Set(ctx, chat.ProviderAnthropic, "sk-ant"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(ctx, chat.ProviderOpenAI)
	if err != nil || got != "sk-1" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	ps, _ := m.Providers(ctx)
	if len(ps) != 2 || ps[0] != chat.ProviderAnthropic || ps[1] != chat.ProviderOpenAI {
		t.Fatalf("Providers = %v", ps)
	}

	if err := m.Delete(ctx, chat.ProviderOpenAI); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, chat.ProviderOpenAI); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete: %v", err)
	}
}

func TestMemorySetValidates(t *testing.T) {
	m := NewMemory()
	if err := m.Set(context.Background(), chat.Provider("mistral"), "k"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if err := m.Set(context.Background(), chat.ProviderOpenAI, "   "); err == nil {
		t.Fatal("expected error for blank key")
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, chat.ProviderGemini, " AIza \n")

	if got := Lookup(ctx, m, chat.ProviderGemini); got != "AIza" {
		t.Errorf("Lookup = %q, want trimmed key", got)
	}
	if got := Lookup(ctx, m, chat.ProviderOpenAI); got != "" {
		t.Errorf("Lookup(missing) = %q", got)
	}
	if got := Lookup(ctx, nil, chat.ProviderOpenAI); got != "" {
		t.Errorf("Lookup(nil store) = %q", got)
	}
	f := &failingStore{Memory: NewMemory()}
	if got := Lookup(ctx, f, chat.ProviderOpenAI); got != "" {
		t.Errorf("Lookup(failing store) = %q", got)
	}
}
