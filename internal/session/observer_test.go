package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/ledger"
	"github.com/altic/readr/internal/metrics"
	"github.com/altic/readr/internal/testutil"
)

type memLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (m *memLedger) Record(_ context.Context, e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *memLedger) Summary(context.Context, ledger.Filter) (ledger.Summary, error) {
	return ledger.Summary{}, errors.New("not implemented")
}

func (m *memLedger) ListRecent(context.Context, ledger.Filter) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Entry(nil), m.entries...), nil
}

func (m *memLedger) Close() error { return nil }

// recorder signals after every other observer has been notified, as long as
// it is registered last.
type recorder struct {
	started  chan Info
	finished chan Result
	rejected chan error
}

func newRecorder() *recorder {
	return &recorder{
		started:  make(chan Info, 4),
		finished: make(chan Result, 4),
		rejected: make(chan error, 4),
	}
}

func (r *recorder) SessionStarted(info Info)           { r.started <- info }
func (r *recorder) SessionFinished(_ Info, res Result) { r.finished <- res }
func (r *recorder) SessionRejected(_ string, _ chat.Provider, err error) {
	r.rejected <- err
}

func (r *recorder) awaitFinished(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-r.finished:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("observer not notified")
		return Result{}
	}
}

func TestObserversRecordCompletedSession(t *testing.T) {
	srv := testutil.NewIPv4Server(t, &testutil.SSEHandler{Chunks: []string{
		openAIChunk("héllo"), openAIChunk(" there"), "data: [DONE]\n\n",
	}})
	defer srv.Close()

	store := &memLedger{}
	collector := metrics.NewCollector()
	rec := newRecorder()
	surface := newOpenAISurface(t, srv, func(c *Config) {
		c.Name = "reader"
		c.Observers = []Observer{
			&LedgerObserver{Store: store, Logger: quiet},
			&MetricsObserver{Collector: collector},
			rec,
		}
	})

	sess, err := surface.Start(context.Background(), Request{
		Provider: chat.ProviderOpenAI, History: history("x"), Credential: "k",
	}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	info := <-rec.started
	if info.ID != sess.ID() || info.Surface != "reader" || info.Model == "" {
		t.Fatalf("started info = %+v", info)
	}
	if res := rec.awaitFinished(t); res.State != StateCompleted {
		t.Fatalf("state = %s", res.State)
	}

	entries, _ := store.ListRecent(context.Background(), ledger.Filter{})
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d", len(entries))
	}
	e := entries[0]
	if e.SessionID != sess.ID() || e.Outcome != ledger.OutcomeCompleted || e.Fragments != 2 {
		t.Fatalf("entry = %+v", e)
	}
	if e.OutputChars != 11 {
		t.Fatalf("output chars = %d, want 11 runes", e.OutputChars)
	}
	if e.FinishedAt.Before(e.StartedAt) {
		t.Fatal("finished before started")
	}

	snap := collector.GetSnapshot()
	if snap.SessionsStarted["openai"] != 1 || snap.SessionsActive["openai"] != 0 {
		t.Fatalf("started=%v active=%v", snap.SessionsStarted, snap.SessionsActive)
	}
	if snap.SessionOutcomes["openai|completed"] != 1 || snap.Fragments["openai"] != 2 {
		t.Fatalf("outcomes=%v fragments=%v", snap.SessionOutcomes, snap.Fragments)
	}
}

func TestObserversRecordFailureAndRejection(t *testing.T) {
	srv := testutil.NewIPv4Server(t, &testutil.SSEHandler{Status: 500, ErrorBody: `{"error":{"message":"boom"}}`})
	defer srv.Close()

	store := &memLedger{}
	collector := metrics.NewCollector()
	rec := newRecorder()
	surface := newOpenAISurface(t, srv, func(c *Config) {
		c.Observers = []Observer{&LedgerObserver{Store: store}, &MetricsObserver{Collector: collector}, rec}
	})

	if _, err := surface.Start(context.Background(), Request{Provider: chat.ProviderOpenAI, History: history("x")}, nil); err == nil {
		t.Fatal("expected rejection")
	}
	select {
	case <-rec.rejected:
	default:
		t.Fatal("rejection not observed")
	}
	if got := collector.GetSnapshot().StartRejections["openai"]; got != 1 {
		t.Fatalf("start rejections = %d", got)
	}

	if _, err := surface.Start(context.Background(), Request{
		Provider: chat.ProviderOpenAI, History: history("x"), Credential: "k",
	}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res := rec.awaitFinished(t); res.State != StateFailed {
		t.Fatalf("state = %s", res.State)
	}
	entries, _ := store.ListRecent(context.Background(), ledger.Filter{})
	if len(entries) != 1 || entries[0].Outcome != ledger.OutcomeFailed || entries[0].Error == "" {
		t.Fatalf("entries = %+v", entries)
	}
	if got := collector.GetSnapshot().SessionOutcomes["openai|failed"]; got != 1 {
		t.Fatalf("failed outcomes = %d", got)
	}
}

func TestOutcomeMapping(t *testing.T) {
	tests := []struct {
		state State
		want  ledger.Outcome
	}{
		{StateCompleted, ledger.OutcomeCompleted},
		{StateCancelled, ledger.OutcomeCancelled},
		{StateFailed, ledger.OutcomeFailed},
	}
	for _, tt := range tests {
		if got := outcome(tt.state); got != tt.want {
			t.Errorf("outcome(%s) = %s, want %s", tt.state, got, tt.want)
		}
	}
}
