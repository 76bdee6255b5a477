package session

import (
	"context"

	"github.com/al-bashkir/simplifyhealth/internal/broadcast"
)

// Store is the single source of truth for State. Reads and subscriptions are
// open to everyone; writes happen only through Manager.
type Store struct {
	value *broadcast.Value[State]
}

func newStore(initial State) *Store {
	return &Store{value: broadcast.NewValue(initial)}
}

// Current returns the state after the last applied transition.
func (s *Store) Current() State {
	return s.value.Get()
}

// Subscribe returns a feed of states starting with the current one.
func (s *Store) Subscribe() *broadcast.Subscription[State] {
	return s.value.Subscribe()
}

// Observe returns a feed of states starting with the current one. The feed
// ends when ctx is done or the store is closed.
func (s *Store) Observe(ctx context.Context) <-chan State {
	return s.value.Observe(ctx)
}

// Subscribers returns the number of live feeds.
func (s *Store) Subscribers() int {
	return s.value.Subscribers()
}

func (s *Store) set(st State) {
	s.value.Set(st)
}

func (s *Store) close() {
	s.value.Close()
}
