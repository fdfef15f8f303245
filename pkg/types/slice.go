package types

import (
	"errors"
	"sync"
)

var (
	// ErrSliceEmpty is returned by Shift when there is nothing to dequeue.
	ErrSliceEmpty = errors.New("slice is empty")
	// ErrIndexOutOfBounds is returned by Splice for an out-of-range start.
	ErrIndexOutOfBounds = errors.New("index out of bounds")
)

// Slice is a FIFO-oriented, mutex-protected list shared by a few call
// sites that need a queue with occasional random-access removal: the
// engine's pending-dial table, its subscription-disposer list, and the
// per-event listener buckets in this package. Every method takes and
// releases its lock internally, so a caller never holds it across a
// user callback (important: listener buckets are walked while emitting,
// and a listener is free to register or remove another listener).
type Slice[T any] struct {
	mu   sync.RWMutex
	data []T
}

// NewSlice builds a Slice seeded with the given elements, if any.
func NewSlice[T any](seed ...T) *Slice[T] {
	s := &Slice[T]{}
	if len(seed) > 0 {
		s.data = append(s.data, seed...)
	}
	return s
}

// Push appends one or more elements and reports the new length.
func (s *Slice[T]) Push(v ...T) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, v...)
	return len(s.data)
}

// Shift dequeues the oldest element. ErrSliceEmpty if there is none.
func (s *Slice[T]) Shift() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if len(s.data) == 0 {
		return zero, ErrSliceEmpty
	}
	head := s.data[0]
	s.data = s.data[1:]
	return head, nil
}

// Splice removes deleteCount elements starting at start and inserts
// insert in their place, returning what was removed.
func (s *Slice[T]) Splice(start, deleteCount int, insert ...T) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spliceLocked(start, deleteCount, insert...)
}

func (s *Slice[T]) spliceLocked(start, deleteCount int, insert ...T) ([]T, error) {
	if start < 0 || start > len(s.data) {
		return nil, ErrIndexOutOfBounds
	}
	if end := start + deleteCount; end > len(s.data) {
		deleteCount = len(s.data) - start
	}

	removed := append([]T(nil), s.data[start:start+deleteCount]...)
	tail := append([]T(nil), s.data[start+deleteCount:]...)
	s.data = append(append(s.data[:start], insert...), tail...)
	return removed, nil
}

// RangeAndSplice walks the elements in order, calling match for each.
// The first time match reports true it receives (start, deleteCount,
// insert) from the same call and RangeAndSplice performs that splice
// under the same lock acquisition, returning whatever was removed. If
// no element matches, it returns (nil, nil) without mutating the
// slice. This is how the pending-dial FIFO implements "remove the
// first entry satisfying a predicate" without a separate find-then-
// splice round trip that could race a concurrent push.
func (s *Slice[T]) RangeAndSplice(match func(T, int) (bool, int, int, []T)) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, v := range s.data {
		if ok, start, deleteCount, insert := match(v, i); ok {
			return s.spliceLocked(start, deleteCount, insert...)
		}
	}
	return nil, nil
}

// All returns a snapshot copy of the current elements.
func (s *Slice[T]) All() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.data...)
}

// Clear empties the slice in place.
func (s *Slice[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = s.data[:0]
}

// Len reports the current element count.
func (s *Slice[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
