// store.go — the single-consumer dispatch queue around the reducer.
package threadstate

import (
	"sync"
)

// Listener observes applied actions. It runs on the dispatching goroutine
// while the store lock is held, so dispatch order is exactly notification
// order; listeners must be fast and must not dispatch re-entrantly.
type Listener func(action Action, state *State)

// Store owns the current snapshot. Dispatches are serialized by a mutex, so
// every transition is atomic from the perspective of concurrent callers.
type Store struct {
	mu        sync.Mutex
	state     *State
	nextSubID int
	listeners map[int]Listener
}

// NewStore creates a store holding an empty snapshot.
func NewStore() *Store {
	return &Store{
		state:     NewState(),
		listeners: map[int]Listener{},
	}
}

// State returns the current snapshot. Snapshots are immutable; the pointer
// stays valid forever and must be treated as read-only.
func (s *Store) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch reduces one action into the store and returns the resulting
// snapshot. Listeners are only notified when the snapshot actually changed
// (pointer inequality).
func (s *Store) Dispatch(action Action) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Reduce(s.state, action)
	if next == s.state {
		return next
	}
	s.state = next
	for _, fn := range s.listeners {
		fn(action, next)
	}
	return next
}

// Subscribe registers a listener and returns its unsubscribe function.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
