// Package statestore holds the CSRF state token for an in-flight popup login.
// The token is session-scoped and single-use: it is written before the popup
// opens and must be erased on consumption whether or not it matched.
package statestore

import (
	"time"

	"github.com/pkg/errors"
)

var ErrNoPendingState = errors.New("no pending oauth state")

// PendingState is the CSRF token written before the popup opens.
type PendingState struct {
	Token     string
	CreatedAt time.Time
}

type Repo interface {
	// Put records the state for the attempt being started, replacing any
	// leftover state from an abandoned attempt.
	Put(state *PendingState) error

	// Take returns the pending state and erases it in the same step.
	Take() (*PendingState, error)

	// Clear erases any pending state without returning it.
	Clear() error
}
