// Package session drives one streaming request per chat surface: it sends the
// prepared request, feeds the response through an sse.Reader and delivers text
// fragments to a sink in the caller's delivery context.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/sse"
)

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Sink receives each text fragment in order. It runs on the surface's
// Dispatcher and must not call Cancel or Start on the same surface
// synchronously.
type Sink func(fragment string)

// Info identifies a session.
type Info struct {
	ID        string        `json:"id"`
	Surface   string        `json:"surface"`
	Provider  chat.Provider `json:"provider"`
	Model     string        `json:"model,omitempty"`
	StartedAt time.Time     `json:"started_at"`
}

// Result is a snapshot of a session.
type Result struct {
	State State `json:"state"`
	// Text is everything accepted from the stream before the session ended.
	// With a queued dispatcher it can hold fragments the sink never saw
	// because Cancel suppressed their pending delivery.
	Text         string    `json:"text"`
	Err          error     `json:"-"`
	Fragments    int       `json:"fragments"`
	DecodeErrors int       `json:"decode_errors"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// maxErrorBody caps how much of a non-2xx body is read for diagnostics.
const maxErrorBody = 64 << 10

// Session is one in-flight or finished request.
type Session struct {
	info      Info
	adapter   adapter.ChatAdapter
	client    *http.Client
	dispatch  Dispatcher
	sink      Sink
	logger    *log.Logger
	observers []Observer

	cancelCtx context.CancelFunc

	mu         sync.Mutex
	state      State
	text       strings.Builder
	fragments  int
	decodeErrs int
	err        error
	finishedAt time.Time
	suppressed bool // no further sink calls

	// deliverMu is held for the duration of every sink call so Cancel can
	// wait out a delivery that is already running.
	deliverMu sync.Mutex

	done chan struct{}
}

// Info returns the session's identity.
func (s *Session) Info() Info { return s.info }

// ID returns the session UUID.
func (s *Session) ID() string { return s.info.ID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the text accumulated so far. It runs ahead of the sink and,
// after Cancel, may include fragments that were never delivered.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Result returns a snapshot of the session.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultLocked()
}

func (s *Session) resultLocked() Result {
	return Result{
		State:        s.state,
		Text:         s.text.String(),
		Err:          s.err,
		Fragments:    s.fragments,
		DecodeErrors: s.decodeErrs,
		FinishedAt:   s.finishedAt,
	}
}

// Done is closed when the session reaches a terminal state. With a Queue
// dispatcher, fragments may still be waiting in the queue at that point.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session is terminal or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.Result(), nil
	case <-ctx.Done():
		return s.Result(), ctx.Err()
	}
}

// Cancel aborts the request and moves a non-terminal session to Cancelled.
// When Cancel returns the sink will not be invoked again. Cancel is
// idempotent; on a terminal session it only drops deliveries still queued.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.suppressed = true
	s.mu.Unlock()

	s.cancelCtx()
	s.finish(StateCancelled, nil)

	// wait out a sink call already in progress
	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}

// finish moves the session to a terminal state once.
func (s *Session) finish(state State, err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.err = err
	s.finishedAt = time.Now().UTC()
	if state == StateCancelled {
		s.suppressed = true
	}
	res := s.resultLocked()
	s.mu.Unlock()

	close(s.done)

	switch state {
	case StateFailed:
		s.logger.Printf("session %s (%s) failed after %d fragments: %v", s.info.ID, s.info.Provider, res.Fragments, err)
	default:
		s.logger.Printf("session %s (%s) %s: %d fragments, %d decode errors", s.info.ID, s.info.Provider, state, res.Fragments, res.DecodeErrors)
	}
	for _, o := range s.observers {
		o.SessionFinished(s.info, res)
	}
}

// transition moves Sending to Streaming; it reports false if the session
// already ended.
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = to
	return true
}

// accept appends a fragment and schedules its delivery. It reports false once
// the session has been cancelled.
func (s *Session) accept(text string) bool {
	s.mu.Lock()
	if s.suppressed || s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.text.WriteString(text)
	s.fragments++
	s.mu.Unlock()

	s.dispatch.Dispatch(func() { s.deliver(text) })
	return true
}

func (s *Session) deliver(text string) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	suppressed := s.suppressed
	s.mu.Unlock()
	if suppressed || s.sink == nil {
		return
	}
	s.sink(text)
}

func (s *Session) countDecodeError(err error) {
	s.mu.Lock()
	s.decodeErrs++
	s.mu.Unlock()
	s.logger.Printf("session %s: skipped malformed event: %v", s.info.ID, err)
}

// run owns the HTTP response and the reader for the lifetime of the session.
func (s *Session) run(ctx context.Context, req *http.Request) {
	p := s.info.Provider

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			s.finish(StateCancelled, nil)
			return
		}
		s.finish(StateFailed, &adapter.TransportError{Provider: p, Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if dec, ok := s.adapter.(adapter.ErrorDecoder); ok {
			msg = dec.DecodeErrorBody(resp.StatusCode, body)
		}
		s.finish(StateFailed, &adapter.TransportError{
			Provider:   p,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		})
		return
	}

	if !s.transition(StateStreaming) {
		return
	}

	reader := sse.NewReader(s.adapter)
	reader.OnDecodeError = s.countDecodeError

	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, frag := range reader.Feed(buf[:n]) {
				if !s.handle(frag) {
					return
				}
			}
		}
		if readErr == nil {
			continue
		}
		if ctx.Err() != nil {
			s.finish(StateCancelled, nil)
			return
		}
		if !errors.Is(readErr, io.EOF) {
			s.finish(StateFailed, &adapter.TransportError{Provider: p, Err: readErr})
			return
		}
		for _, frag := range reader.Flush() {
			if !s.handle(frag) {
				return
			}
		}
		// providers without an in-band terminator end on transport close
		s.finish(StateCompleted, nil)
		return
	}
}

// handle applies one fragment; it reports false when the session is over.
func (s *Session) handle(frag adapter.Fragment) bool {
	switch frag.Kind {
	case adapter.KindText:
		return s.accept(frag.Text)
	case adapter.KindDone:
		s.finish(StateCompleted, nil)
		return false
	}
	return true
}
