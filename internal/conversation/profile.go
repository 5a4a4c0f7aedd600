package conversation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/altic/readr/internal/chat"
)

const (
	DefaultPersona         = "You are a helpful assistant."
	DefaultSummaryMaxChars = 3000
	// FallbackGreeting is the synthetic first user message used when a built
	// conversation would otherwise not start with the user.
	FallbackGreeting = "Hello"
)

// DefaultSummaryKeywords trigger document injection when found in the latest user turn.
var DefaultSummaryKeywords = []string{"summary", "summarize", "overview"}

// Profile configures how conversations are assembled.
type Profile struct {
	Persona     string                             `yaml:"persona"`
	Summary     SummaryConfig                      `yaml:"summary"`
	Alternation map[chat.Provider]chat.Alternation `yaml:"alternation,omitempty"`
}

// SummaryConfig controls the document-injection heuristic.
type SummaryConfig struct {
	Keywords []string `yaml:"keywords"`
	MaxChars int      `yaml:"max_chars"`
}

// DefaultProfile returns the built-in profile.
func DefaultProfile() Profile {
	keywords := make([]string, len(DefaultSummaryKeywords))
	copy(keywords, DefaultSummaryKeywords)
	return Profile{
		Persona: DefaultPersona,
		Summary: SummaryConfig{Keywords: keywords, MaxChars: DefaultSummaryMaxChars},
	}
}

// AlternationFor returns the configured policy for p, falling back to the
// provider default.
func (p Profile) AlternationFor(provider chat.Provider) chat.Alternation {
	if a, ok := p.Alternation[provider]; ok && a != "" {
		return a
	}
	return provider.DefaultAlternation()
}

// LoadProfile reads a YAML profile. Missing fields keep their defaults.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes YAML profile content.
func ParseProfile(data []byte) (Profile, error) {
	var raw struct {
		Persona string `yaml:"persona"`
		Summary struct {
			Keywords []string `yaml:"keywords"`
			MaxChars *int     `yaml:"max_chars"`
		} `yaml:"summary"`
		Alternation map[string]string `yaml:"alternation"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}

	p := DefaultProfile()
	if s := strings.TrimSpace(raw.Persona); s != "" {
		p.Persona = s
	}
	if len(raw.Summary.Keywords) > 0 {
		p.Summary.Keywords = p.Summary.Keywords[:0]
		for _, k := range raw.Summary.Keywords {
			if k = strings.TrimSpace(k); k != "" {
				p.Summary.Keywords = append(p.Summary.Keywords, k)
			}
		}
	}
	if raw.Summary.MaxChars != nil {
		if *raw.Summary.MaxChars < 0 {
			return Profile{}, fmt.Errorf("parse profile: summary.max_chars must not be negative")
		}
		p.Summary.MaxChars = *raw.Summary.MaxChars
	}
	for name, policy := range raw.Alternation {
		provider, err := chat.ParseProvider(name)
		if err != nil {
			return Profile{}, fmt.Errorf("parse profile: alternation: %w", err)
		}
		a, err := chat.ParseAlternation(policy)
		if err != nil {
			return Profile{}, fmt.Errorf("parse profile: alternation: %w", err)
		}
		if p.Alternation == nil {
			p.Alternation = make(map[chat.Provider]chat.Alternation)
		}
		p.Alternation[provider] = a
	}
	return p, nil
}

// Marshal renders the profile as YAML.
func (p Profile) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
