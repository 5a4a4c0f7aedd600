package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/adapter/anthropic"
	"github.com/altic/readr/internal/adapter/gemini"
	"github.com/altic/readr/internal/adapter/loopback"
	"github.com/altic/readr/internal/adapter/openai"
	"github.com/altic/readr/internal/chat"
)

// Router selects the adapter for a provider when a session starts.
type Router struct {
	mu       sync.RWMutex
	adapters map[chat.Provider]adapter.ChatAdapter
	routes   map[string]chat.Provider // model pattern -> provider
}

// New creates an empty Router.
func New() *Router {
	return &Router{
		adapters: make(map[chat.Provider]adapter.ChatAdapter),
		routes:   make(map[string]chat.Provider),
	}
}

// Config carries per-provider adapter settings for NewDefault.
type Config struct {
	OpenAI    openai.Config
	Anthropic anthropic.Config
	Gemini    gemini.Config
	// LoopbackURL overrides loopback://local.
	LoopbackURL string
}

// NewDefault registers an adapter for every known provider plus model-name
// routes for the common model families.
func NewDefault(cfg Config) *Router {
	r := New()
	oa := openai.New(cfg.OpenAI)
	an := anthropic.New(cfg.Anthropic)
	ge := gemini.New(cfg.Gemini)
	for _, a := range []adapter.ChatAdapter{oa, an, ge, loopback.New(cfg.LoopbackURL)} {
		_ = r.RegisterAdapter(a)
	}
	_ = r.RegisterRoute("gpt-*", chat.ProviderOpenAI)
	_ = r.RegisterRoute("o1*", chat.ProviderOpenAI)
	_ = r.RegisterRoute("claude*", chat.ProviderAnthropic)
	_ = r.RegisterRoute("gemini*", chat.ProviderGemini)
	// exact matches for the configured models win over the family patterns
	_ = r.RegisterRoute(oa.Model(), chat.ProviderOpenAI)
	_ = r.RegisterRoute(an.Model(), chat.ProviderAnthropic)
	_ = r.RegisterRoute(ge.Model(), chat.ProviderGemini)
	return r
}

// RegisterAdapter registers an adapter under the provider it speaks,
// replacing any previous registration.
func (r *Router) RegisterAdapter(a adapter.ChatAdapter) error {
	if a == nil {
		return errors.New("router: adapter cannot be nil")
	}
	p := a.Provider()
	if p == "" {
		return errors.New("router: adapter provider cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[p] = a
	return nil
}

// RegisterRoute registers a model pattern to provider mapping.
// Model patterns support:
// - Exact match: "gpt-4"
// - Prefix match: "gpt-*" (matches gpt-4, gpt-4o, etc.)
// - Suffix match: "*-flash"
// - Contains match: "*sonnet*"
func (r *Router) RegisterRoute(modelPattern string, p chat.Provider) error {
	modelPattern = strings.ToLower(strings.TrimSpace(modelPattern))
	if modelPattern == "" {
		return errors.New("router: model pattern cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[p]; !exists {
		return fmt.Errorf("router: adapter %q not registered", p)
	}

	r.routes[modelPattern] = p
	return nil
}

// Adapter returns the adapter registered for p. An unknown provider yields a
// *adapter.ConfigurationError wrapping adapter.ErrUnknownProvider.
func (r *Router) Adapter(p chat.Provider) (adapter.ChatAdapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[p]
	r.mu.RUnlock()
	if !ok {
		return nil, &adapter.ConfigurationError{Provider: p, Err: adapter.ErrUnknownProvider}
	}
	return a, nil
}

// Resolve maps a provider name, display name or model name to a registered
// provider.
func (r *Router) Resolve(name string) (chat.Provider, error) {
	if p, err := chat.ParseProvider(name); err == nil {
		r.mu.RLock()
		_, ok := r.adapters[p]
		r.mu.RUnlock()
		if ok {
			return p, nil
		}
	}
	return r.findProvider(name)
}

// findProvider finds the provider serving a given model.
func (r *Router) findProvider(model string) (chat.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model = strings.ToLower(strings.TrimSpace(model))

	// Try exact match first
	if p, exists := r.routes[model]; exists {
		return p, nil
	}

	// Longest pattern wins so overlapping families resolve deterministically.
	patterns := make([]string, 0, len(r.routes))
	for pattern := range r.routes {
		patterns = append(patterns, pattern)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})
	for _, pattern := range patterns {
		if matchPattern(model, pattern) {
			return r.routes[pattern], nil
		}
	}

	return "", &adapter.ConfigurationError{
		Provider: chat.Provider(model),
		Err:      fmt.Errorf("%w: no adapter found for %q", adapter.ErrUnknownProvider, model),
	}
}

// matchPattern checks if a model matches a pattern.
func matchPattern(model, pattern string) bool {
	model = strings.ToLower(model)
	pattern = strings.ToLower(pattern)

	if model == pattern {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(model, strings.Trim(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(model, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(model, strings.TrimPrefix(pattern, "*"))
	}
	return false
}

// ListAdapters returns all registered providers in sorted order.
func (r *Router) ListAdapters() []chat.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]chat.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ListRoutes returns all registered routes.
func (r *Router) ListRoutes() map[string]chat.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string]chat.Provider, len(r.routes))
	for pattern, p := range r.routes {
		routes[pattern] = p
	}
	return routes
}
