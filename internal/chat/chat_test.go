package chat

import "testing"

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{in: "openai", want: ProviderOpenAI},
		{in: "OpenAI", want: ProviderOpenAI},
		{in: " anthropic ", want: ProviderAnthropic},
		{in: "Gemini", want: ProviderGemini},
		{in: "loopback", want: ProviderLoopback},
		{in: "mistral", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseProvider(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProvider(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProvider(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultAlternation(t *testing.T) {
	if got := ProviderAnthropic.DefaultAlternation(); got != AlternationDrop {
		t.Errorf("anthropic alternation = %q, want drop", got)
	}
	if got := ProviderOpenAI.DefaultAlternation(); got != AlternationNone {
		t.Errorf("openai alternation = %q, want none", got)
	}
	if got := Provider("other").DefaultAlternation(); got != AlternationNone {
		t.Errorf("unknown provider alternation = %q, want none", got)
	}
}

func TestParseAlternation(t *testing.T) {
	if a, err := ParseAlternation("MERGE"); err != nil || a != AlternationMerge {
		t.Fatalf("ParseAlternation(MERGE) = %q, %v", a, err)
	}
	if _, err := ParseAlternation("squash"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestTurn(t *testing.T) {
	a := NewTurn("hi", true)
	b := NewTurn("hi", true)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if a.Role() != RoleUser {
		t.Errorf("role = %q, want user", a.Role())
	}
	if !(Turn{Text: "  "}).Empty() {
		t.Error("blank turn should be empty")
	}
	if (Turn{Context: "page 3"}).Empty() {
		t.Error("turn with context should not be empty")
	}
}

func TestDisplayName(t *testing.T) {
	if got := ProviderAnthropic.DisplayName(); got != "Anthropic" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := Provider("x").DisplayName(); got != "x" {
		t.Errorf("DisplayName(unknown) = %q", got)
	}
	if len(Providers()) != 4 {
		t.Errorf("Providers() len = %d", len(Providers()))
	}
}
