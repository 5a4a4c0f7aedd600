// Package credentials stores one opaque API key per provider.
package credentials

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/altic/readr/internal/chat"
)

// ErrNotFound is returned by Get when no key is stored for the provider.
var ErrNotFound = errors.New("credentials: not found")

// Store persists API keys keyed by provider. Keys are never logged.
type Store interface {
	Get(ctx context.Context, p chat.Provider) (string, error)
	Set(ctx context.Context, p chat.Provider, key string) error
	Delete(ctx context.Context, p chat.Provider) error
	// Providers lists the providers that have a stored key.
	Providers(ctx context.Context) ([]chat.Provider, error)
	Close() error
}

// Lookup returns the stored key for p, or "" when the store is nil, the key
// is absent or blank, or the store fails. Any failure means "no credential".
func Lookup(ctx context.Context, s Store, p chat.Provider) string {
	if s == nil {
		return ""
	}
	key, err := s.Get(ctx, p)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(key)
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	keys map[chat.Provider]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{keys: make(map[chat.Provider]string)}
}

func (m *Memory) Get(_ context.Context, p chat.Provider) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[p]
	if !ok {
		return "", ErrNotFound
	}
	return key, nil
}

func (m *Memory) Set(_ context.Context, p chat.Provider, key string) error {
	if err := Validate(p, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[p] = key
	return nil
}

func (m *Memory) Delete(_ context.Context, p chat.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, p)
	return nil
}

func (m *Memory) Providers(context.Context) ([]chat.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chat.Provider, 0, len(m.keys))
	for p := range m.keys {
		out = append(out, p)
	}
	SortProviders(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

// Validate rejects unknown providers and blank keys.
func Validate(p chat.Provider, key string) error {
	if _, ok := p.Info(); !ok {
		return errors.New("credentials: unknown provider " + string(p))
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("credentials: key cannot be empty")
	}
	return nil
}

// SortProviders orders providers by name.
func SortProviders(ps []chat.Provider) {
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
}
