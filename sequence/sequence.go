// Package sequence assigns strictly monotonic per-stream counters, the
// seq column every posted journal entry and audit event carries. The
// original's row-locked counter table is realized here as a per-stream
// in-process mutex guarding a bbolt-backed counter, so concurrent posters
// to the same stream serialize on allocation while distinct streams never
// block each other.
package sequence

import (
	"fmt"
	"sync"

	"ledgerkernel/store"
)

// Service allocates monotonic counters, one per named stream (the journal
// writer and the audit log each allocate from their own). Gaps from
// rolled-back transactions are permitted and never reused; the invariant is strict monotonicity, not gapless numbering.
type Service struct {
	db *store.Store

	mu       sync.Mutex
	streamMu map[string]*sync.Mutex
}

// NewService returns a Service backed by db.
func NewService(db *store.Store) *Service {
	return &Service{db: db, streamMu: make(map[string]*sync.Mutex)}
}

func (s *Service) lockFor(stream string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.streamMu[stream]
	if !ok {
		m = &sync.Mutex{}
		s.streamMu[stream] = m
	}
	return m
}

// counter is the persisted value for one stream.
type counter struct {
	Stream  string
	Current int64
}

// NextValue acquires stream's lock, increments its counter by one, and
// returns the new value. Safe for concurrent use across streams; callers
// posting to the same stream serialize on the stream's own lock.
func (s *Service) NextValue(stream string) (int64, error) {
	lock := s.lockFor(stream)
	lock.Lock()
	defer lock.Unlock()

	existing, found, err := store.Get[counter](s.db, store.BucketSequenceCounters, stream)
	if err != nil {
		return 0, fmt.Errorf("read sequence counter %q: %w", stream, err)
	}
	next := int64(1)
	if found {
		next = existing.Current + 1
	}
	if err := store.Put(s.db, store.BucketSequenceCounters, stream, counter{Stream: stream, Current: next}); err != nil {
		return 0, fmt.Errorf("write sequence counter %q: %w", stream, err)
	}
	return next, nil
}

// CurrentValue returns the stream's last-allocated value without
// advancing it, or 0 if nothing has been allocated yet.
func (s *Service) CurrentValue(stream string) (int64, error) {
	existing, found, err := store.Get[counter](s.db, store.BucketSequenceCounters, stream)
	if err != nil {
		return 0, fmt.Errorf("read sequence counter %q: %w", stream, err)
	}
	if !found {
		return 0, nil
	}
	return existing.Current, nil
}
