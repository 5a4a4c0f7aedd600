// Package async decouples ledger writes from session goroutines.
package async

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/altic/readr/internal/ledger"
)

// Config configures batching.
type Config struct {
	BatchSize     int           // entries per write, default 100
	FlushInterval time.Duration // longest an entry waits, default 1s
	ChannelBuffer int           // queued entries before Record drops, default 1024
	Logger        *log.Logger
}

// Store wraps a ledger.Store so Record never blocks. Queued entries are lost
// if the process dies before a flush.
type Store struct {
	next   ledger.Store
	batch  ledger.BatchRecorder
	cfg    Config
	logger *log.Logger

	queue   chan ledger.Entry
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	dropped atomic.Int64
	written atomic.Int64
}

var _ ledger.Store = (*Store)(nil)

// New starts the writer goroutine for next.
func New(next ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 1024
	}
	s := &Store{
		next:   next,
		cfg:    cfg,
		logger: cfg.Logger,
		queue:  make(chan ledger.Entry, cfg.ChannelBuffer),
		done:   make(chan struct{}),
	}
	s.batch, _ = next.(ledger.BatchRecorder)
	go s.run()
	s.logf("batching ledger writes: batch_size=%d flush_interval=%v buffer=%d transactional=%t",
		cfg.BatchSize, cfg.FlushInterval, cfg.ChannelBuffer, s.batch != nil)
	return s
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Store) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make([]ledger.Entry, 0, s.cfg.BatchSize)
	for {
		select {
		case e, ok := <-s.queue:
			if !ok {
				s.flush(pending)
				return
			}
			pending = append(pending, e)
			if len(pending) >= s.cfg.BatchSize {
				s.flush(pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			s.flush(pending)
			pending = pending[:0]
		}
	}
}

// flush writes entries in one transaction when the store supports it and
// falls back to one insert per entry otherwise or when the batch fails.
func (s *Store) flush(entries []ledger.Entry) {
	if len(entries) == 0 {
		return
	}
	ctx := context.Background()
	if s.batch != nil {
		err := s.batch.RecordBatch(ctx, entries)
		if err == nil {
			s.written.Add(int64(len(entries)))
			return
		}
		s.logf("batch of %d failed, retrying singly: %v", len(entries), err)
	}
	for _, e := range entries {
		if err := s.next.Record(ctx, e); err != nil {
			s.logf("record %s: %v", e.SessionID, err)
			continue
		}
		s.written.Add(1)
	}
}

// Record validates and queues an entry. When the queue is full or the store
// is closed the entry is dropped and counted.
func (s *Store) Record(_ context.Context, entry ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return nil
	}
	select {
	case s.queue <- entry:
	default:
		s.dropped.Add(1)
		s.logf("queue full, dropping entry %s", entry.SessionID)
	}
	return nil
}

// Dropped returns how many entries were discarded.
func (s *Store) Dropped() int64 { return s.dropped.Load() }

// Written returns how many entries reached the underlying store.
func (s *Store) Written() int64 { return s.written.Load() }

// Summary reads the underlying store; queued entries appear after a flush.
func (s *Store) Summary(ctx context.Context, f ledger.Filter) (ledger.Summary, error) {
	return s.next.Summary(ctx, f)
}

// ListRecent reads the underlying store.
func (s *Store) ListRecent(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	return s.next.ListRecent(ctx, f)
}

// PingContext probes the underlying store when it supports it.
func (s *Store) PingContext(ctx context.Context) error {
	if p, ok := s.next.(interface{ PingContext(context.Context) error }); ok {
		return p.PingContext(ctx)
	}
	return nil
}

// Close flushes queued entries and closes the underlying store.
func (s *Store) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	<-s.done
	if d := s.dropped.Load(); d > 0 {
		s.logf("closed with %d dropped entries", d)
	}
	return s.next.Close()
}
