package ratelimit

import (
	"sync"
	"time"
)

// MemoryStore keeps one token bucket per client key in process.
type MemoryStore struct {
	capacity   float64
	refillRate float64

	mu      sync.Mutex
	buckets map[string]*TokenBucket

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// NewMemoryStore creates a store whose buckets hold capacity tokens and
// refill at refillRate per second. Idle buckets are dropped every
// cleanupInterval; zero disables cleanup.
func NewMemoryStore(capacity, refillRate float64, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		capacity:        capacity,
		refillRate:      refillRate,
		buckets:         make(map[string]*TokenBucket),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// bucket gets or creates the bucket for key.
func (s *MemoryStore) bucket(key string) *TokenBucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok {
		b = NewTokenBucket(s.capacity, s.refillRate)
		s.buckets[key] = b
	}
	return b
}

// Reset refills the bucket for key, if any.
func (s *MemoryStore) Reset(key string) {
	s.mu.Lock()
	b, ok := s.buckets[key]
	s.mu.Unlock()
	if ok {
		b.Reset()
	}
}

// Len returns the number of tracked clients.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Close stops background cleanup.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	if s.cleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes buckets that have refilled, i.e. clients gone quiet.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.buckets {
		if b.idle() {
			delete(s.buckets, key)
		}
	}
}
