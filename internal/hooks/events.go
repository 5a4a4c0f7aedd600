// Package hooks hands readr lifecycle events to operator scripts, e.g. to
// mirror finished answers into a notes app or audit credential changes.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names an exported lifecycle transition.
type EventType string

const (
	EventSessionStarted    EventType = "readr.session.started"
	EventSessionFinished   EventType = "readr.session.finished"
	EventSessionRejected   EventType = "readr.session.rejected"
	EventCredentialStored  EventType = "readr.credential.stored"
	EventCredentialRemoved EventType = "readr.credential.removed"
)

// Event envelopes the payload broadcast to handlers. Credentials never appear
// in events.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Surface    string         `json:"surface,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(t EventType) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: time.Now().UTC()}
}

// Handler reacts to an Event. Implementations should be idempotent.
type Handler func(context.Context, Event) error

// Dispatcher fans events out to handlers in registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
}

// Register adds a handler.
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Emit delivers event to every handler and joins their errors. A nil
// Dispatcher drops the event.
func (d *Dispatcher) Emit(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScriptConfig describes the executable run per event.
type ScriptConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Timeout time.Duration
}

// maxStderr caps how much script stderr is carried in the returned error.
const maxStderr = 512

// NewScriptHandler returns a Handler that runs the command once per event
// with the event as JSON on stdin and READR_EVENT_TYPE / READR_EVENT_ID set.
func NewScriptHandler(cfg ScriptConfig) Handler {
	return func(ctx context.Context, evt Event) error {
		if cfg.Command == "" {
			return errors.New("hooks: command not configured")
		}
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("hooks: marshal event: %w", err)
		}
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		cmd.Env = append(cmd.Environ(), "READR_EVENT_TYPE="+string(evt.Type), "READR_EVENT_ID="+evt.ID)
		for key, val := range cfg.Env {
			cmd.Env = append(cmd.Env, key+"="+val)
		}
		cmd.Stdin = bytes.NewReader(payload)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				if len(msg) > maxStderr {
					msg = msg[:maxStderr] + "..."
				}
				return fmt.Errorf("hooks: %s %s: %w: %s", cfg.Command, evt.Type, err, msg)
			}
			return fmt.Errorf("hooks: %s %s: %w", cfg.Command, evt.Type, err)
		}
		return nil
	}
}
