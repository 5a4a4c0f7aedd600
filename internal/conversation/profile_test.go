package conversation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/altic/readr/internal/chat"
)

func TestParseProfile(t *testing.T) {
	data := []byte(`
persona: You are a careful research assistant.
summary:
  keywords: [digest, " recap "]
  max_chars: 1200
alternation:
  anthropic: merge
  OpenAI: drop
`)
	p, err := ParseProfile(data)
	if err != nil {
		t.Fatalf("ParseProfile() error = %v", err)
	}
	if p.Persona != "You are a careful research assistant." {
		t.Errorf("persona = %q", p.Persona)
	}
	if strings.Join(p.Summary.Keywords, ",") != "digest,recap" {
		t.Errorf("keywords = %v", p.Summary.Keywords)
	}
	if p.Summary.MaxChars != 1200 {
		t.Errorf("max_chars = %d", p.Summary.MaxChars)
	}
	if got := p.AlternationFor(chat.ProviderAnthropic); got != chat.AlternationMerge {
		t.Errorf("anthropic alternation = %q", got)
	}
	if got := p.AlternationFor(chat.ProviderOpenAI); got != chat.AlternationDrop {
		t.Errorf("openai alternation = %q", got)
	}
	if got := p.AlternationFor(chat.ProviderGemini); got != chat.AlternationDrop {
		t.Errorf("gemini alternation = %q, want provider default", got)
	}
}

func TestParseProfile_Defaults(t *testing.T) {
	p, err := ParseProfile([]byte("{}"))
	if err != nil {
		t.Fatalf("ParseProfile() error = %v", err)
	}
	if p.Persona != DefaultPersona || p.Summary.MaxChars != DefaultSummaryMaxChars || len(p.Summary.Keywords) != 3 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestParseProfile_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "bad yaml", data: "persona: [unterminated"},
		{name: "negative cap", data: "summary:\n  max_chars: -1\n"},
		{name: "unknown provider", data: "alternation:\n  mistral: drop\n"},
		{name: "unknown policy", data: "alternation:\n  anthropic: squash\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProfile([]byte(tt.data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestProfileMarshalRoundTrip(t *testing.T) {
	p := DefaultProfile()
	p.Alternation = map[chat.Provider]chat.Alternation{chat.ProviderAnthropic: chat.AlternationMerge}
	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, err := ParseProfile(data)
	if err != nil {
		t.Fatalf("ParseProfile() error = %v", err)
	}
	if back.AlternationFor(chat.ProviderAnthropic) != chat.AlternationMerge || back.Persona != p.Persona {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestWatchProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(path, []byte("persona: first\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(DefaultProfile())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- WatchProfile(ctx, path, b, nil) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		// Rewrite until the watcher has registered and picked the change up.
		if err := os.WriteFile(path, []byte("persona: second\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if b.Profile().Persona == "second" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if got := b.Profile().Persona; got != "second" {
		t.Fatalf("persona = %q, want reloaded value", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("WatchProfile() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
