package conversation

import (
	"strings"
	"sync"

	"github.com/altic/readr/internal/chat"
)

// Builder turns chat history into the outbound message list for a provider.
// It is safe for concurrent use; the profile may be swapped at runtime.
type Builder struct {
	mu      sync.RWMutex
	profile Profile
}

// NewBuilder creates a Builder using the given profile.
func NewBuilder(profile Profile) *Builder {
	return &Builder{profile: profile}
}

// Profile returns the active profile.
func (b *Builder) Profile() Profile {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.profile
}

// SetProfile replaces the active profile.
func (b *Builder) SetProfile(p Profile) {
	b.mu.Lock()
	b.profile = p
	b.mu.Unlock()
}

// Build assembles messages: one system message followed by a conversation that
// satisfies the provider's alternation policy and always starts with the user.
// It never fails; empty input yields [system, user "Hello"].
func (b *Builder) Build(history []chat.Turn, selectedContext string, provider chat.Provider, firstPagesText string) []chat.Message {
	profile := b.Profile()

	system := systemPrompt(profile, history, selectedContext, firstPagesText)

	convo := make([]chat.Message, 0, len(history))
	for _, turn := range history {
		if turn.Empty() {
			continue
		}
		content := turn.Text
		if ctx := strings.TrimSpace(turn.Context); ctx != "" {
			content += "\n<context>" + turn.Context + "\n</context>"
		}
		convo = append(convo, chat.Message{Role: turn.Role(), Content: content})
	}

	convo = enforceAlternation(convo, profile.AlternationFor(provider))

	if len(convo) == 0 || convo[0].Role != chat.RoleUser {
		convo = append([]chat.Message{{Role: chat.RoleUser, Content: FallbackGreeting}}, convo...)
	}

	out := make([]chat.Message, 0, len(convo)+1)
	out = append(out, chat.Message{Role: chat.RoleSystem, Content: system})
	return append(out, convo...)
}

func systemPrompt(profile Profile, history []chat.Turn, selectedContext, firstPagesText string) string {
	persona := strings.TrimSpace(profile.Persona)
	if persona == "" {
		persona = DefaultPersona
	}
	var sb strings.Builder
	sb.WriteString(persona)
	if strings.TrimSpace(selectedContext) != "" {
		sb.WriteString(" The user has selected the following context: \"")
		sb.WriteString(selectedContext)
		sb.WriteString("\"")
	}
	if doc := strings.TrimSpace(firstPagesText); doc != "" && wantsSummary(profile.Summary.Keywords, latestUserText(history)) {
		sb.WriteString(" Here is the content of the document: ")
		sb.WriteString(prefixRunes(firstPagesText, profile.Summary.MaxChars))
	}
	return sb.String()
}

func latestUserText(history []chat.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].IsUser {
			return history[i].Text
		}
	}
	return ""
}

func wantsSummary(keywords []string, utterance string) bool {
	if utterance == "" {
		return false
	}
	lower := strings.ToLower(utterance)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// prefixRunes returns at most n characters of s without splitting a rune.
func prefixRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func enforceAlternation(msgs []chat.Message, policy chat.Alternation) []chat.Message {
	if policy == chat.AlternationNone || policy == "" || len(msgs) < 2 {
		return msgs
	}
	kept := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if n := len(kept); n > 0 && kept[n-1].Role == m.Role {
			if policy == chat.AlternationMerge {
				kept[n-1].Content += "\n\n" + m.Content
			}
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
