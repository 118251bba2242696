// Package state holds typed reactive state containers.
package state

import "sync"

// Store owns one value of S. All changes go through Update, which applies a
// reducer and publishes the new value to subscribers. Values handed out by Get
// and Subscribe are shared snapshots and must be treated as read-only.
type Store[S any] struct {
	mu     sync.RWMutex
	state  S
	subs   map[uint64]chan S
	nextID uint64
}

func New[S any](initial S) *Store[S] {
	return &Store[S]{
		state: initial,
		subs:  make(map[uint64]chan S),
	}
}

func (s *Store[S]) Get() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Update replaces the state with reduce(current) and returns the new state.
func (s *Store[S]) Update(reduce func(S) S) S {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = reduce(s.state)
	for _, ch := range s.subs {
		publish(ch, s.state)
	}
	return s.state
}

// Subscribe returns a channel that receives the latest state after every
// Update. Slow subscribers only see the most recent value. The returned func
// unsubscribes and must be called once the subscriber is done.
func (s *Store[S]) Subscribe() (<-chan S, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan S, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

func publish[S any](ch chan S, v S) {
	select {
	case ch <- v:
		return
	default:
	}
	// drop the stale value nobody read yet
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
