package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket refills at a constant rate and allows bursts up to its capacity.
type TokenBucket struct {
	mu         sync.Mutex
	lim        *rate.Limiter
	capacity   int
	refillRate float64 // tokens per second
}

// NewTokenBucket returns a full bucket. capacity=5, refillRate=0.5 allows five
// sends at once and then one every two seconds. Fractional capacities round up.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	burst := max(1, int(math.Ceil(capacity)))
	return &TokenBucket{
		lim:        rate.NewLimiter(rate.Limit(refillRate), burst),
		capacity:   burst,
		refillRate: refillRate,
	}
}

func (tb *TokenBucket) limiter() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lim
}

// Allow consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN consumes n tokens if available.
func (tb *TokenBucket) AllowN(n int) bool {
	return tb.limiter().AllowN(time.Now(), n)
}

// Remaining returns the tokens currently available.
func (tb *TokenBucket) Remaining() float64 {
	return tb.limiter().Tokens()
}

// Reset refills the bucket.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.lim = rate.NewLimiter(rate.Limit(tb.refillRate), tb.capacity)
}

// idle reports whether the bucket is nearly full, i.e. unused for a while.
func (tb *TokenBucket) idle() bool {
	return tb.Remaining() >= float64(tb.capacity)*0.95
}

// WaitTime returns how long until one token is available; zero if one is.
func (tb *TokenBucket) WaitTime() time.Duration {
	lim := tb.limiter()
	now := time.Now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return time.Duration(math.MaxInt64)
	}
	defer r.CancelAt(now)
	return r.DelayFrom(now)
}
