package chat

import (
	"fmt"
	"strings"
)

// Provider names a remote LLM API. The set is closed; adding a provider means
// adding a constant here and an adapter under internal/adapter.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderLoopback  Provider = "loopback"
)

// Alternation controls how consecutive same-role messages are handled before a
// request is sent.
type Alternation string

const (
	// AlternationNone sends the history as built.
	AlternationNone Alternation = "none"
	// AlternationDrop keeps the first of a run of same-role messages.
	AlternationDrop Alternation = "drop"
	// AlternationMerge joins a run of same-role messages into one.
	AlternationMerge Alternation = "merge"
)

// ParseAlternation accepts none|drop|merge (case-insensitive).
func ParseAlternation(v string) (Alternation, error) {
	switch a := Alternation(strings.ToLower(strings.TrimSpace(v))); a {
	case AlternationNone, AlternationDrop, AlternationMerge:
		return a, nil
	default:
		return "", fmt.Errorf("unknown alternation policy %q", v)
	}
}

// ProviderInfo is the static description of a provider.
type ProviderInfo struct {
	Provider    Provider
	DisplayName string
	BaseURL     string
	Model       string
	AuthScheme  string
	// StrictAlternation is set when the API rejects histories where two
	// consecutive messages share a role.
	StrictAlternation bool
}

var providers = []ProviderInfo{
	{
		Provider:    ProviderOpenAI,
		DisplayName: "OpenAI",
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4",
		AuthScheme:  "Authorization: Bearer",
	},
	{
		Provider:          ProviderAnthropic,
		DisplayName:       "Anthropic",
		BaseURL:           "https://api.anthropic.com",
		Model:             "claude-3-5-sonnet-20241022",
		AuthScheme:        "x-api-key",
		StrictAlternation: true,
	},
	{
		Provider:          ProviderGemini,
		DisplayName:       "Gemini",
		BaseURL:           "https://generativelanguage.googleapis.com",
		Model:             "gemini-1.5-flash",
		AuthScheme:        "x-goog-api-key",
		StrictAlternation: true,
	},
	{
		Provider:    ProviderLoopback,
		DisplayName: "Loopback",
		BaseURL:     "loopback://local",
		Model:       "echo",
		AuthScheme:  "Authorization: Bearer",
	},
}

// Providers lists every known provider in display order.
func Providers() []ProviderInfo {
	out := make([]ProviderInfo, len(providers))
	copy(out, providers)
	return out
}

// Info returns the static description for p.
func (p Provider) Info() (ProviderInfo, bool) {
	for _, info := range providers {
		if info.Provider == p {
			return info, true
		}
	}
	return ProviderInfo{}, false
}

// DisplayName returns the human readable provider name.
func (p Provider) DisplayName() string {
	if info, ok := p.Info(); ok {
		return info.DisplayName
	}
	return string(p)
}

// DefaultAlternation is drop for strict providers and none otherwise.
func (p Provider) DefaultAlternation() Alternation {
	if info, ok := p.Info(); ok && info.StrictAlternation {
		return AlternationDrop
	}
	return AlternationNone
}

// ParseProvider matches a provider by name or display name, ignoring case.
func ParseProvider(v string) (Provider, error) {
	v = strings.TrimSpace(v)
	for _, info := range providers {
		if strings.EqualFold(v, string(info.Provider)) || strings.EqualFold(v, info.DisplayName) {
			return info.Provider, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", v)
}
