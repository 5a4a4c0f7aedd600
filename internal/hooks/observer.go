package hooks

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/session"
)

// DefaultObserverBuffer is the number of events a SessionObserver queues
// before it starts dropping.
const DefaultObserverBuffer = 256

// SessionObserver turns session lifecycle callbacks into events. Reply text
// is not included, only its length. Events are handed to a single background
// worker so a slow hook never delays Start or Cancel; when the queue is full
// the event is dropped and counted.
type SessionObserver struct {
	dispatcher *Dispatcher
	logger     *log.Logger

	queue   chan Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	dropped atomic.Int64
}

var _ session.RejectObserver = (*SessionObserver)(nil)

// NewSessionObserver starts the delivery worker. buffer <= 0 selects
// DefaultObserverBuffer. Call Close to flush queued events.
func NewSessionObserver(d *Dispatcher, logger *log.Logger, buffer int) *SessionObserver {
	if buffer <= 0 {
		buffer = DefaultObserverBuffer
	}
	o := &SessionObserver{
		dispatcher: d,
		logger:     logger,
		queue:      make(chan Event, buffer),
		done:       make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *SessionObserver) run() {
	defer close(o.done)
	for evt := range o.queue {
		if err := o.dispatcher.Emit(context.Background(), evt); err != nil {
			o.logf("hook %s failed: %v", evt.Type, err)
		}
	}
}

func (o *SessionObserver) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}

func (o *SessionObserver) SessionStarted(info session.Info) {
	evt := NewEvent(EventSessionStarted)
	evt.Surface, evt.SessionID, evt.Provider = info.Surface, info.ID, string(info.Provider)
	evt.Metadata = map[string]any{"model": info.Model}
	o.emit(evt)
}

func (o *SessionObserver) SessionFinished(info session.Info, res session.Result) {
	evt := NewEvent(EventSessionFinished)
	evt.Surface, evt.SessionID, evt.Provider = info.Surface, info.ID, string(info.Provider)
	evt.Metadata = map[string]any{
		"model":         info.Model,
		"state":         res.State.String(),
		"fragments":     res.Fragments,
		"output_chars":  len([]rune(res.Text)),
		"decode_errors": res.DecodeErrors,
		"duration_ms":   res.FinishedAt.Sub(info.StartedAt).Milliseconds(),
	}
	if res.Err != nil {
		evt.Metadata["error"] = res.Err.Error()
	}
	o.emit(evt)
}

func (o *SessionObserver) SessionRejected(surface string, p chat.Provider, err error) {
	evt := NewEvent(EventSessionRejected)
	evt.Surface, evt.Provider = surface, string(p)
	evt.Metadata = map[string]any{"error": err.Error()}
	o.emit(evt)
}

// emit queues evt without blocking.
func (o *SessionObserver) emit(evt Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.dropped.Add(1)
		return
	}
	select {
	case o.queue <- evt:
	default:
		o.dropped.Add(1)
		o.logf("hook queue full, dropping %s for session %s", evt.Type, evt.SessionID)
	}
}

// Dropped returns how many events were discarded.
func (o *SessionObserver) Dropped() int64 { return o.dropped.Load() }

// Close stops accepting events and waits for queued ones to be delivered.
func (o *SessionObserver) Close() error {
	o.once.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.queue)
		o.mu.Unlock()
	})
	<-o.done
	return nil
}
