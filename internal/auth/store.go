package auth

import (
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/state"
)

// State is the unified auth slice of a device session.
type State struct {
	domain.AuthSession
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

type Store struct {
	state *state.Store[State]
}

func NewStore() *Store {
	return &Store{state: state.New(State{})}
}

func (s *Store) Snapshot() State {
	return s.state.Get()
}

func (s *Store) Subscribe() (<-chan State, func()) {
	return s.state.Subscribe()
}

func (s *Store) LoginStart() {
	s.state.Update(func(st State) State {
		st.Loading = true
		st.Error = ""
		return st
	})
}

func (s *Store) LoginSuccess(user *domain.User, tokens domain.TokenPair) {
	s.state.Update(func(st State) State {
		st.IsAuthenticated = true
		st.User = user
		st.AccessToken = tokens.AccessToken
		st.RefreshToken = tokens.RefreshToken
		st.Loading = false
		st.Error = ""
		return st
	})
}

func (s *Store) LoginFailure(message string) {
	s.state.Update(func(st State) State {
		st.Loading = false
		st.Error = message
		return st
	})
}

func (s *Store) Logout() {
	s.state.Update(func(State) State { return State{} })
}

func (s *Store) UpdateTokens(tokens domain.TokenPair) {
	s.state.Update(func(st State) State {
		st.AccessToken = tokens.AccessToken
		st.RefreshToken = tokens.RefreshToken
		return st
	})
}

func (s *Store) ClearError() {
	s.state.Update(func(st State) State {
		st.Error = ""
		return st
	})
}

func (s *Store) ClearLoading() {
	s.state.Update(func(st State) State {
		st.Loading = false
		return st
	})
}

func (s *Store) IsAuthenticated() bool {
	return s.state.Get().IsAuthenticated
}

func (s *Store) UserID() string {
	if u := s.state.Get().User; u != nil {
		return u.ID
	}
	return ""
}
