package session

import (
	"sort"
	"sync"
)

// Manager hands out one Surface per name, sharing a Config.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	surfaces map[string]*Surface
}

// NewManager creates a Manager; cfg.Name is ignored.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, surfaces: make(map[string]*Surface)}
}

// Surface returns the named surface, creating it on first use.
func (m *Manager) Surface(name string) *Surface {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.surfaces[name]; ok {
		return s
	}
	cfg := m.cfg
	cfg.Name = name
	s := NewSurface(cfg)
	m.surfaces[name] = s
	return s
}

// Lookup returns the named surface without creating it.
func (m *Manager) Lookup(name string) (*Surface, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surfaces[name]
	return s, ok
}

// Snapshot describes the current session of a surface.
type Snapshot struct {
	Info
	State     State  `json:"state"`
	Fragments int    `json:"fragments"`
	Error     string `json:"error,omitempty"`
}

// Sessions lists the current session of every surface, ordered by surface name.
func (m *Manager) Sessions() []Snapshot {
	m.mu.Lock()
	surfaces := make([]*Surface, 0, len(m.surfaces))
	for _, s := range m.surfaces {
		surfaces = append(surfaces, s)
	}
	m.mu.Unlock()

	sort.Slice(surfaces, func(i, j int) bool { return surfaces[i].name < surfaces[j].name })
	out := make([]Snapshot, 0, len(surfaces))
	for _, s := range surfaces {
		cur := s.Current()
		if cur == nil {
			continue
		}
		res := cur.Result()
		snap := Snapshot{Info: cur.Info(), State: res.State, Fragments: res.Fragments}
		if res.Err != nil {
			snap.Error = res.Err.Error()
		}
		out = append(out, snap)
	}
	return out
}

// CancelAll cancels every live session.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	surfaces := make([]*Surface, 0, len(m.surfaces))
	for _, s := range m.surfaces {
		surfaces = append(surfaces, s)
	}
	m.mu.Unlock()
	for _, s := range surfaces {
		s.Cancel()
	}
}
