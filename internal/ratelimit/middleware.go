package ratelimit

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
)

// KeyFunc names the client a request counts against.
type KeyFunc func(r *http.Request) string

// RemoteIP keys requests by the remote address host, which chi's RealIP
// middleware may already have rewritten.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429.
type Middleware struct {
	limiter *Limiter
	key     KeyFunc
	logger  *log.Logger
}

// NewMiddleware wraps limiter; key defaults to RemoteIP.
func NewMiddleware(limiter *Limiter, key KeyFunc, logger *log.Logger) *Middleware {
	if key == nil {
		key = RemoteIP
	}
	return &Middleware{limiter: limiter, key: key, logger: logger}
}

// Wrap applies the limit to next. It is a pass-through when limiting is off.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil || m.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.key(r)
		allowed, remaining, retryAfter := m.limiter.Allow(key)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", m.limiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", math.Floor(remaining)))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		secs := int(math.Ceil(retryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(1, secs)))
		if m.logger != nil {
			m.logger.Printf("rate limit exceeded: client=%s path=%s", key, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded, retry later"})
	})
}
