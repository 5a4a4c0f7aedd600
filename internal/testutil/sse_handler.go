package testutil

import (
	"io"
	"net/http"
	"sync"
	"time"
)

// RecordedRequest is what SSEHandler saw for one call.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// SSEHandler replays a scripted event stream and records every request.
type SSEHandler struct {
	// Status defaults to 200. Non-2xx statuses write ErrorBody instead of Chunks.
	Status    int
	ErrorBody string
	// Chunks are written and flushed one at a time, Delay apart.
	Chunks []string
	Delay  time.Duration
	// Hold keeps the response open after the last chunk until the client
	// goes away or Release is called.
	Hold bool

	mu       sync.Mutex
	requests []RecordedRequest
	release  chan struct{}
	once     sync.Once
	started  chan struct{}
	startOne sync.Once
}

// Started is closed once the first request has begun streaming.
func (h *SSEHandler) Started() <-chan struct{} {
	h.init()
	return h.started
}

// Release ends held responses.
func (h *SSEHandler) Release() {
	h.init()
	h.once.Do(func() { close(h.release) })
}

func (h *SSEHandler) init() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.release == nil {
		h.release = make(chan struct{})
	}
	if h.started == nil {
		h.started = make(chan struct{})
	}
}

// Requests returns a copy of the recorded requests.
func (h *SSEHandler) Requests() []RecordedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]RecordedRequest(nil), h.requests...)
}

// Hits returns the number of requests served.
func (h *SSEHandler) Hits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.init()
	body, _ := io.ReadAll(r.Body)
	h.mu.Lock()
	h.requests = append(h.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	h.mu.Unlock()

	status := h.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status < 200 || status > 299 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, h.ErrorBody)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	h.startOne.Do(func() { close(h.started) })

	for _, chunk := range h.Chunks {
		if h.Delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(h.Delay):
			}
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if h.Hold {
		select {
		case <-r.Context().Done():
		case <-h.release:
		}
	}
}
