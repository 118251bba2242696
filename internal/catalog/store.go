// Package catalog holds the process-wide category list.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/dedup"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/fjod/go_cart/storefront/internal/state"
)

const fetchAllCategoriesKey = "fetchAllCategories"

type Fetcher interface {
	Categories(ctx context.Context) ([]domain.Category, error)
}

type State struct {
	Categories []domain.Category `json:"categories"`
	Loading    bool              `json:"loading"`
	Error      string            `json:"error,omitempty"`
	FetchedAt  time.Time         `json:"fetchedAt,omitzero"`
}

type Store struct {
	fetcher Fetcher
	guard   *dedup.Guard
	ttl     time.Duration
	now     func() time.Time
	state   *state.Store[State]

	// generation counts finished fetches; done is closed and replaced on each
	mu   sync.Mutex
	gen  uint64
	done chan struct{}
}

func NewStore(fetcher Fetcher, guard *dedup.Guard, ttl time.Duration) *Store {
	if guard == nil {
		guard = dedup.NewGuard()
	}
	return &Store{
		fetcher: fetcher,
		guard:   guard,
		ttl:     ttl,
		now:     time.Now,
		state:   state.New(State{}),
		done:    make(chan struct{}),
	}
}

func (s *Store) Snapshot() State {
	return s.state.Get()
}

// FetchAllCategories loads the category list unless a load is already
// running. It reports whether this call did the load.
func (s *Store) FetchAllCategories(ctx context.Context) bool {
	ran, _ := s.guard.Track(ctx, fetchAllCategoriesKey, func() error {
		s.state.Update(func(st State) State {
			st.Loading = true
			st.Error = ""
			return st
		})

		// the result is shared with every waiting caller
		cats, err := s.fetcher.Categories(context.WithoutCancel(ctx))
		if err != nil {
			msg := remote.Message(err, "Network error")
			logger.Printf(ctx, "catalog: fetch categories failed: %v", err)
			s.state.Update(func(st State) State {
				st.Loading = false
				st.Error = msg
				return st
			})
			return err
		}

		now := s.now()
		s.state.Update(func(st State) State {
			return State{Categories: cats, FetchedAt: now}
		})
		return nil
	})
	// advance only once the key is released, so a caller skipped by this
	// fetch always read a generation it has not reached yet
	if ran {
		s.advance()
	}
	return ran
}

// Categories returns the cached list while it is fresh. Otherwise it fetches,
// or waits for the fetch another caller already started.
func (s *Store) Categories(ctx context.Context) ([]domain.Category, error) {
	if st := s.state.Get(); s.fresh(st) {
		return st.Categories, nil
	}

	for {
		gen := s.generation()
		if !s.FetchAllCategories(ctx) {
			if err := s.Await(ctx, gen); err != nil {
				return nil, err
			}
		}

		st := s.state.Get()
		if st.Loading {
			// a newer fetch started meanwhile
			continue
		}
		if st.Error != "" && len(st.Categories) == 0 {
			return nil, errors.New(st.Error)
		}
		return st.Categories, nil
	}
}

func (s *Store) fresh(st State) bool {
	if st.FetchedAt.IsZero() || st.Error != "" {
		return false
	}
	return s.ttl <= 0 || s.now().Sub(st.FetchedAt) < s.ttl
}

func (s *Store) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Store) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	close(s.done)
	s.done = make(chan struct{})
}

// Await blocks until a fetch finishes after generation since.
func (s *Store) Await(ctx context.Context, since uint64) error {
	for {
		s.mu.Lock()
		if s.gen > since {
			s.mu.Unlock()
			return nil
		}
		done := s.done
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
