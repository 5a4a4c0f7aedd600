package ledger

import (
	"context"
	"sync"
)

// Memory keeps entries in process. It backs ledger_backend=memory and tests.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int64
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory { return &Memory{} }

// Record appends entry and assigns its ID.
func (m *Memory) Record(_ context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, entry)
	return nil
}

// Summary aggregates the entries matching f.
func (m *Memory) Summary(_ context.Context, f Filter) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Summary
	for _, e := range m.entries {
		if !f.Match(e) {
			continue
		}
		s.Sessions++
		s.OutputChars += e.OutputChars
		switch e.Outcome {
		case OutcomeCompleted:
			s.Completed++
		case OutcomeCancelled:
			s.Cancelled++
		case OutcomeFailed:
			s.Failed++
		}
	}
	return s, nil
}

// ListRecent returns matching entries, newest first.
func (m *Memory) ListRecent(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	var out []Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.Match(m.entries[i]) {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

// Match reports whether e passes the filter's provider and surface criteria.
func (f Filter) Match(e Entry) bool {
	if f.Surface != "" && e.Surface != f.Surface {
		return false
	}
	if len(f.Providers) == 0 {
		return true
	}
	for _, p := range f.Providers {
		if p == e.Provider {
			return true
		}
	}
	return false
}
