package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/altic/readr/internal/chat"
)

// Outcome is the terminal state a session reached.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Entry records how one streaming session ended.
type Entry struct {
	ID          int64         `json:"id"`
	SessionID   string        `json:"session_id"`
	Surface     string        `json:"surface"`
	Provider    chat.Provider `json:"provider"`
	Model       string        `json:"model"`
	Outcome     Outcome       `json:"outcome"`
	Fragments   int64         `json:"fragments"`
	OutputChars int64         `json:"output_chars"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Stamped fills a missing finish time with now and a missing start time with
// the finish time.
func (e Entry) Stamped() Entry {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now().UTC()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	return e
}

// Duration is the wall time between start and finish.
func (e Entry) Duration() time.Duration { return e.FinishedAt.Sub(e.StartedAt) }

// Validate checks the fields every store requires.
func (e Entry) Validate() error {
	if e.SessionID == "" {
		return errors.New("ledger record requires session id")
	}
	if e.Provider == "" {
		return errors.New("ledger record requires provider")
	}
	switch e.Outcome {
	case OutcomeCompleted, OutcomeCancelled, OutcomeFailed:
	default:
		return fmt.Errorf("invalid outcome %q", e.Outcome)
	}
	return nil
}

// Summary aggregates session outcomes.
type Summary struct {
	Sessions    int64 `json:"sessions"`
	Completed   int64 `json:"completed"`
	Cancelled   int64 `json:"cancelled"`
	Failed      int64 `json:"failed"`
	OutputChars int64 `json:"output_chars"`
}

// Filter narrows ListRecent and Summary. Zero values match everything.
type Filter struct {
	Providers []chat.Provider
	Surface   string
	Limit     int // ListRecent only; defaults to 50
}

// Store defines persistence behaviour for the ledger.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Summary(ctx context.Context, f Filter) (Summary, error)
	ListRecent(ctx context.Context, f Filter) ([]Entry, error)
	Close() error
}

// BatchRecorder is implemented by stores that can write several entries in
// one transaction. Either all entries are stored or none are.
type BatchRecorder interface {
	RecordBatch(ctx context.Context, entries []Entry) error
}

// DefaultLimit applies when Filter.Limit is not positive.
const DefaultLimit = 50

// ProviderStrings converts providers for driver arguments.
func ProviderStrings(ps []chat.Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
