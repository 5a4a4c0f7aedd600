// Package health probes the daemon's stores and provider endpoints.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// rank orders statuses from best to worst.
func (s Status) rank() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

// CheckResult holds the result of one probe.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component is a probed part of the daemon.
type Component struct {
	Name string `json:"name"`
	Type string `json:"type"` // database or http
	CheckResult
}

// HealthStatus is the aggregate of the latest probes.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// Pinger is satisfied by *sql.DB and by the credential and ledger stores.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// probe runs one check. Failures of critical probes make the daemon
// unhealthy; the rest only degrade it.
type probe struct {
	name     string
	kind     string
	critical bool
	run      func(ctx context.Context) CheckResult
}

// Config holds health checker configuration.
type Config struct {
	// HTTPClient is used for endpoint probes; it should carry the same
	// transport as streaming sessions so loopback:// resolves.
	HTTPClient *http.Client

	DBTimeout          time.Duration
	HTTPTimeout        time.Duration
	MaxDatabaseLatency time.Duration
	// CacheFor reuses the last result for this long; 0 probes on every Check.
	CacheFor time.Duration
}

// Checker runs the registered probes concurrently.
type Checker struct {
	cfg    Config
	client *http.Client

	mu     sync.RWMutex
	probes []probe
	last   HealthStatus
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.DBTimeout <= 0 {
		cfg.DBTimeout = 2 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxDatabaseLatency <= 0 {
		cfg.MaxDatabaseLatency = 100 * time.Millisecond
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Checker{cfg: cfg, client: client}
}

// AddDatabase registers a store probe. Unreachable stores make the daemon unhealthy.
func (c *Checker) AddDatabase(name string, db Pinger) {
	if db == nil {
		return
	}
	c.add(probe{name: name, kind: "database", critical: true, run: func(ctx context.Context) CheckResult {
		return c.pingStore(ctx, db)
	}})
}

// AddEndpoint registers a provider endpoint probe. Unreachable endpoints only
// degrade the daemon.
func (c *Checker) AddEndpoint(name, baseURL string) {
	c.add(probe{name: name, kind: "http", run: func(ctx context.Context) CheckResult {
		return c.reach(ctx, baseURL)
	}})
}

func (c *Checker) add(p probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, p)
	c.last = HealthStatus{}
}

// Check runs every probe, or returns the cached result while it is fresh.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	probes := append([]probe(nil), c.probes...)
	last := c.last
	c.mu.RUnlock()
	if c.cfg.CacheFor > 0 && !last.Timestamp.IsZero() && time.Since(last.Timestamp) < c.cfg.CacheFor {
		return last
	}

	components := make([]Component, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			components[i] = Component{Name: p.name, Type: p.kind, CheckResult: p.run(ctx)}
		}()
	}
	wg.Wait()
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	result := aggregate(probes, components)
	c.mu.Lock()
	c.last = result
	c.mu.Unlock()
	return result
}

// GetLastStatus returns the last health check result without probing.
func (c *Checker) GetLastStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last.Timestamp.IsZero() {
		return HealthStatus{Status: StatusHealthy, Timestamp: time.Now()}
	}
	return c.last
}

func aggregate(probes []probe, components []Component) HealthStatus {
	critical := make(map[string]bool, len(probes))
	for _, p := range probes {
		critical[p.name] = p.critical
	}
	overall := StatusHealthy
	for _, comp := range components {
		s := comp.Status
		if s == StatusUnhealthy && !critical[comp.Name] {
			s = StatusDegraded
		}
		if s.rank() > overall.rank() {
			overall = s
		}
	}
	return HealthStatus{Status: overall, Timestamp: time.Now(), Components: components}
}

func (c *Checker) pingStore(ctx context.Context, db Pinger) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DBTimeout)
	defer cancel()
	start := time.Now()
	err := db.PingContext(ctx)
	res := CheckResult{Timestamp: start, Latency: time.Since(start)}
	switch {
	case err != nil:
		res.Status, res.Message, res.Error = StatusUnhealthy, "Database unreachable", err.Error()
	case res.Latency > c.cfg.MaxDatabaseLatency:
		res.Status, res.Message = StatusDegraded, fmt.Sprintf("High latency: %v", res.Latency)
	default:
		res.Status, res.Message = StatusHealthy, "Connected"
	}
	return res
}

// reach treats any HTTP response as reachable; only transport errors degrade.
func (c *Checker) reach(ctx context.Context, baseURL string) CheckResult {
	start := time.Now()
	res := CheckResult{Timestamp: start}
	if baseURL == "" {
		res.Status, res.Message = StatusHealthy, "Not configured"
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HTTPTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		res.Status, res.Error = StatusUnhealthy, err.Error()
		return res
	}
	resp, err := c.client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Status, res.Message, res.Error = StatusDegraded, "Endpoint unreachable", err.Error()
		return res
	}
	resp.Body.Close()
	res.Status, res.Message = StatusHealthy, fmt.Sprintf("Reachable (HTTP %d)", resp.StatusCode)
	return res
}
