package statestore

import (
	"sync"

	"github.com/pkg/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
type InMemoryRepo struct {
	mu      sync.Mutex
	pending *PendingState
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{}
}

func (r *InMemoryRepo) Put(state *PendingState) error {
	if state == nil || state.Token == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Copy to prevent external modification
	r.pending = &PendingState{Token: state.Token, CreatedAt: state.CreatedAt}
	return nil
}

func (r *InMemoryRepo) Take() (*PendingState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		return nil, ErrNoPendingState
	}
	taken := r.pending
	r.pending = nil
	return taken, nil
}

func (r *InMemoryRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
	return nil
}
