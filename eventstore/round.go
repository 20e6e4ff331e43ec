package eventstore

import (
	"sync"
	"time"

	"github.com/tolelom/llfchain/chainerr"
)

// roundEntry is anything keyed by (height, creator) that this store tracks.
type roundEntry interface {
	entryHeight() int64
	entryCreator() string
}

// RoundStore holds one message per (height, creator), deduplicating
// resubmissions from the same validator at the same height, and exposes a
// quorum+timeout wait matching the original event manager's exists() loop:
// return as soon as every replica has reported, otherwise wait up to
// timeout and then proceed if at least quorum reported, else fail the
// round.
type RoundStore[T roundEntry] struct {
	mu      sync.Mutex
	entries map[int64]map[string]T
}

// NewRoundStore creates an empty store.
func NewRoundStore[T roundEntry]() *RoundStore[T] {
	return &RoundStore[T]{entries: make(map[int64]map[string]T)}
}

// Put records entry, overwriting any prior entry from the same creator at
// the same height (a validator only ever has one live choice per height).
func (s *RoundStore[T]) Put(entry T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCreator, ok := s.entries[entry.entryHeight()]
	if !ok {
		byCreator = make(map[string]T)
		s.entries[entry.entryHeight()] = byCreator
	}
	byCreator[entry.entryCreator()] = entry
}

// Get returns every entry recorded for height, in no particular order.
func (s *RoundStore[T]) Get(height int64) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCreator := s.entries[height]
	out := make([]T, 0, len(byCreator))
	for _, e := range byCreator {
		out = append(out, e)
	}
	return out
}

// Count returns the number of distinct creators that have reported at
// height.
func (s *RoundStore[T]) Count(height int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[height])
}

// Wait blocks until height has replicaCount entries, or until timeout
// elapses — at which point it returns what was collected if that meets
// quorum, else a RoundError. poll controls how often the count is
// rechecked while waiting.
func (s *RoundStore[T]) Wait(height int64, replicaCount, quorum int, timeout time.Duration, poll time.Duration) ([]T, error) {
	deadline := time.Now().Add(timeout)
	for {
		entries := s.Get(height)
		if len(entries) >= replicaCount {
			return entries, nil
		}
		if time.Now().After(deadline) {
			if len(entries) >= quorum {
				return entries, nil
			}
			return nil, chainerr.NewRoundError("height %d: only %d of %d replicas reported (quorum %d) before timeout", height, len(entries), replicaCount, quorum)
		}
		time.Sleep(poll)
	}
}

// Clear drops every entry at or below finalizedHeight; called after a
// block at that height commits so the store does not grow unbounded.
func (s *RoundStore[T]) Clear(finalizedHeight int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range s.entries {
		if h <= finalizedHeight {
			delete(s.entries, h)
		}
	}
}
