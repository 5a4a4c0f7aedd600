// Package ratelimit throttles how often a client may start streaming
// sessions, so a runaway caller cannot burn through provider quota.
package ratelimit

import (
	"math"
	"time"
)

// Config holds the send limits. A non-positive RequestsPerSecond disables
// limiting.
type Config struct {
	RequestsPerSecond float64 // sustained rate
	Burst             float64 // defaults to max(1, RequestsPerSecond)
	CleanupInterval   time.Duration
}

// Limiter applies one token bucket per client key.
type Limiter struct {
	store      *MemoryStore
	capacity   float64
	refillRate float64
}

// NewLimiter returns nil when cfg disables limiting; a nil *Limiter allows
// everything.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, cfg.RequestsPerSecond)
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	return &Limiter{
		store:      NewMemoryStore(cfg.Burst, cfg.RequestsPerSecond, cfg.CleanupInterval),
		capacity:   math.Ceil(cfg.Burst),
		refillRate: cfg.RequestsPerSecond,
	}
}

// Allow consumes a token for key. It also returns the tokens left and, when
// denied, how long until the next token.
func (l *Limiter) Allow(key string) (allowed bool, remaining float64, retryAfter time.Duration) {
	if l == nil {
		return true, 0, 0
	}
	b := l.store.bucket(key)
	if b.Allow() {
		return true, b.Remaining(), 0
	}
	return false, b.Remaining(), b.WaitTime()
}

// Limit returns the burst capacity.
func (l *Limiter) Limit() float64 {
	if l == nil {
		return 0
	}
	return l.capacity
}

// Reset clears the limit for key.
func (l *Limiter) Reset(key string) {
	if l != nil {
		l.store.Reset(key)
	}
}

// Close stops background cleanup.
func (l *Limiter) Close() error {
	if l == nil {
		return nil
	}
	return l.store.Close()
}
