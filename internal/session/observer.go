package session

import (
	"context"
	"log"
	"time"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/ledger"
	"github.com/altic/readr/internal/metrics"
)

// Observer is told about every session that passes validation. Calls are
// made outside session locks, from whichever goroutine moved the session.
type Observer interface {
	SessionStarted(info Info)
	SessionFinished(info Info, res Result)
}

// RejectObserver is optionally implemented by observers that also want Start
// calls that failed validation.
type RejectObserver interface {
	SessionRejected(surface string, p chat.Provider, err error)
}

// LedgerObserver writes one ledger entry per finished session.
type LedgerObserver struct {
	Store  ledger.Store
	Logger *log.Logger
}

func (o *LedgerObserver) SessionStarted(Info) {}

func (o *LedgerObserver) SessionFinished(info Info, res Result) {
	entry := ledger.Entry{
		SessionID:   info.ID,
		Surface:     info.Surface,
		Provider:    info.Provider,
		Model:       info.Model,
		Outcome:     outcome(res.State),
		Fragments:   int64(res.Fragments),
		OutputChars: int64(len([]rune(res.Text))),
		StartedAt:   info.StartedAt,
		FinishedAt:  res.FinishedAt,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Store.Record(ctx, entry); err != nil && o.Logger != nil {
		o.Logger.Printf("ledger record failed for session %s: %v", info.ID, err)
	}
}

func outcome(s State) ledger.Outcome {
	switch s {
	case StateCompleted:
		return ledger.OutcomeCompleted
	case StateCancelled:
		return ledger.OutcomeCancelled
	default:
		return ledger.OutcomeFailed
	}
}

// MetricsObserver feeds a metrics.Collector.
type MetricsObserver struct {
	Collector *metrics.Collector
}

func (o *MetricsObserver) SessionStarted(info Info) {
	o.Collector.RecordSessionStart(string(info.Provider))
}

func (o *MetricsObserver) SessionFinished(info Info, res Result) {
	o.Collector.RecordSessionEnd(string(info.Provider), res.State.String(),
		res.FinishedAt.Sub(info.StartedAt), int64(res.Fragments), int64(len([]rune(res.Text))), int64(res.DecodeErrors))
}

func (o *MetricsObserver) SessionRejected(_ string, p chat.Provider, _ error) {
	o.Collector.RecordStartRejected(string(p))
}
