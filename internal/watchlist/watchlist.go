// Package watchlist holds the set of positions believed to carry debt.
//
// The reconciler is the only writer; the pipeline reads whole-set snapshots.
// A snapshot is copied under a single read lock so it always reflects a state
// that existed at one instant.
package watchlist

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alejandrodnm/liqbot/internal/domain"
)

var (
	// ErrAlreadyPresent signals a duplicate Add, usually a re-delivered event.
	ErrAlreadyPresent = errors.New("watchlist: key already present")
	// ErrNotFound signals a Remove of a key that is not tracked.
	ErrNotFound = errors.New("watchlist: key not found")
)

// Set is a concurrency-safe set of position keys.
type Set[K comparable] struct {
	mu    sync.RWMutex
	items map[K]struct{}
}

// Aave tracks (borrower, reserve) positions.
type Aave = Set[domain.WatchKey]

// Morpho tracks (borrower, market id) positions.
type Morpho = Set[domain.MorphoKey]

// New returns an empty set.
func New[K comparable]() *Set[K] {
	return &Set[K]{items: make(map[K]struct{})}
}

// NewAave returns an empty Aave watchlist.
func NewAave() *Aave { return New[domain.WatchKey]() }

// NewMorpho returns an empty Morpho watchlist.
func NewMorpho() *Morpho { return New[domain.MorphoKey]() }

// Add inserts key, returning ErrAlreadyPresent if it is already tracked.
func (s *Set[K]) Add(key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return fmt.Errorf("%w: %v", ErrAlreadyPresent, key)
	}
	s.items[key] = struct{}{}
	return nil
}

// Remove deletes key, returning ErrNotFound if it is not tracked.
func (s *Set[K]) Remove(key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	delete(s.items, key)
	return nil
}

// Contains reports whether key is tracked.
func (s *Set[K]) Contains(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[key]
	return ok
}

// Len returns the number of tracked keys.
func (s *Set[K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Snapshot returns an independent copy of every tracked key. Order is unspecified.
func (s *Set[K]) Snapshot() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]K, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}
