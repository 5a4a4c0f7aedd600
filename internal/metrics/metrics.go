package metrics

import (
	"sync"
	"time"
)

// Collector tracks HTTP and streaming-session counters for the /metrics
// endpoint.
type Collector struct {
	mu sync.RWMutex

	// Request metrics
	totalRequests      map[string]int64 // by endpoint
	totalRequestsDur   map[string]int64 // total duration in ms
	requestErrors      map[string]int64 // by endpoint
	requestsInProgress map[string]int64 // current in-flight requests

	// Session metrics, keyed by provider
	sessionsStarted map[string]int64
	sessionsActive  map[string]int64
	sessionOutcomes map[string]int64 // provider + "|" + outcome
	sessionLatency  map[string]int64 // total ms from start to terminal state
	fragments       map[string]int64
	outputChars     map[string]int64
	decodeErrors    map[string]int64
	startRejections map[string]int64 // configuration and encoding errors

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		totalRequests:      make(map[string]int64),
		totalRequestsDur:   make(map[string]int64),
		requestErrors:      make(map[string]int64),
		requestsInProgress: make(map[string]int64),
		sessionsStarted:    make(map[string]int64),
		sessionsActive:     make(map[string]int64),
		sessionOutcomes:    make(map[string]int64),
		sessionLatency:     make(map[string]int64),
		fragments:          make(map[string]int64),
		outputChars:        make(map[string]int64),
		decodeErrors:       make(map[string]int64),
		startRejections:    make(map[string]int64),
		startTime:          time.Now(),
	}
}

// RecordRequest records a request to an endpoint.
func (c *Collector) RecordRequest(endpoint string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests[endpoint]++
	c.totalRequestsDur[endpoint] += duration.Milliseconds()
}

// RecordError records an error for an endpoint.
func (c *Collector) RecordError(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestErrors[endpoint]++
}

// RecordRequestStart increments in-progress requests.
func (c *Collector) RecordRequestStart(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestsInProgress[endpoint]++
}

// RecordRequestEnd decrements in-progress requests.
func (c *Collector) RecordRequestEnd(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestsInProgress[endpoint]--
}

// RecordSessionStart counts a session that passed validation.
func (c *Collector) RecordSessionStart(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionsStarted[provider]++
	c.sessionsActive[provider]++
}

// RecordSessionEnd records the terminal outcome of a session.
func (c *Collector) RecordSessionEnd(provider, outcome string, duration time.Duration, fragments, chars, decodeErrs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionsActive[provider]--
	c.sessionOutcomes[provider+"|"+outcome]++
	c.sessionLatency[provider] += duration.Milliseconds()
	c.fragments[provider] += fragments
	c.outputChars[provider] += chars
	c.decodeErrors[provider] += decodeErrs
}

// RecordStartRejected counts a Start that failed before any network I/O.
func (c *Collector) RecordStartRejected(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startRejections[provider]++
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Uptime             int64
	TotalRequests      map[string]int64
	TotalRequestsDur   map[string]int64
	RequestErrors      map[string]int64
	RequestsInProgress map[string]int64
	SessionsStarted    map[string]int64
	SessionsActive     map[string]int64
	SessionOutcomes    map[string]int64
	SessionLatency     map[string]int64
	Fragments          map[string]int64
	OutputChars        map[string]int64
	DecodeErrors       map[string]int64
	StartRejections    map[string]int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Uptime:             int64(time.Since(c.startTime).Seconds()),
		TotalRequests:      copyMap(c.totalRequests),
		TotalRequestsDur:   copyMap(c.totalRequestsDur),
		RequestErrors:      copyMap(c.requestErrors),
		RequestsInProgress: copyMap(c.requestsInProgress),
		SessionsStarted:    copyMap(c.sessionsStarted),
		SessionsActive:     copyMap(c.sessionsActive),
		SessionOutcomes:    copyMap(c.sessionOutcomes),
		SessionLatency:     copyMap(c.sessionLatency),
		Fragments:          copyMap(c.fragments),
		OutputChars:        copyMap(c.outputChars),
		DecodeErrors:       copyMap(c.decodeErrors),
		StartRejections:    copyMap(c.startRejections),
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
