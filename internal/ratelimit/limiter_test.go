package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestLimiterPerKey(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 0.1, Burst: 2})
	defer l.Close()

	for i := 0; i < 2; i++ {
		if ok, _, _ := l.Allow("ui"); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, remaining, retry := l.Allow("ui")
	if ok || remaining >= 1 || retry <= 0 {
		t.Fatalf("third request: ok=%v remaining=%f retry=%s", ok, remaining, retry)
	}
	if ok, _, _ := l.Allow("cli"); !ok {
		t.Fatal("other client has its own bucket")
	}
	l.Reset("ui")
	if ok, _, _ := l.Allow("ui"); !ok {
		t.Fatal("reset client should be allowed")
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(Config{})
	if l != nil {
		t.Fatalf("zero rate should disable limiting, got %+v", l)
	}
	for i := 0; i < 100; i++ {
		if ok, _, _ := l.Allow("x"); !ok {
			t.Fatal("nil limiter allows everything")
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLimiterDefaultBurst(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 0.5})
	defer l.Close()
	if l.Limit() != 1 {
		t.Fatalf("burst = %f, want 1", l.Limit())
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	s := NewMemoryStore(1, 1000, 0)
	defer s.Close()
	s.bucket("a").Allow()
	s.bucket("b")
	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
	time.Sleep(5 * time.Millisecond)
	s.cleanup()
	if s.Len() != 0 {
		t.Fatalf("idle buckets should be dropped, len = %d", s.Len())
	}
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 0.01, Burst: 1})
	defer l.Close()
	calls := 0
	h := NewMiddleware(l, func(r *http.Request) string { return r.Header.Get("X-Client") }, nil).
		Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusNoContent)
		}))

	send := func(client string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/surfaces/main/messages", nil)
		req.Header.Set("X-Client", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("a"); rec.Code != http.StatusNoContent || rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("first: %d %v", rec.Code, rec.Header())
	}
	rec := send("a")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second: %d", rec.Code)
	}
	if secs, err := strconv.Atoi(rec.Header().Get("Retry-After")); err != nil || secs < 1 {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec := send("b"); rec.Code != http.StatusNoContent {
		t.Fatalf("other client: %d", rec.Code)
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d", calls)
	}
}

func TestMiddlewarePassThroughWhenDisabled(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	h := NewMiddleware(nil, nil, nil).Wrap(next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatal("disabled middleware must not set headers")
	}
}

func TestRemoteIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	if got := RemoteIP(req); got != "10.1.2.3" {
		t.Fatalf("RemoteIP = %q", got)
	}
	req.RemoteAddr = "10.1.2.3"
	if got := RemoteIP(req); got != "10.1.2.3" {
		t.Fatalf("RemoteIP without port = %q", got)
	}
}
