// Package twofactor models the second step of a two-step login without
// re-running the first step. The raw first-factor credential is retained only
// in memory for the lifetime of the challenge and discarded on cancellation.
package twofactor

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/jmcveigh/portfolio-auth/broker"
)

type State string

const (
	StateIdle      State = "idle"
	StatePending   State = "pending"
	StateVerifying State = "verifying"
)

const codeLength = 6

var (
	ErrCodeMalformed        = errors.New("verification code must be six digits")
	ErrNoPendingChallenge   = errors.New("no pending two-factor challenge")
	ErrVerificationInFlight = errors.New("verification already in progress")
)

// VerifyFunc re-submits the pending first-factor credential together with the
// collected code.
type VerifyFunc func(ctx context.Context, credential broker.Credential, code string) error

// Challenge is the transient sub-flow entered when the backend reports a
// first-factor credential as valid but insufficient.
type Challenge struct {
	mu         sync.Mutex
	state      State
	pending    broker.Credential
	attempts   int
	generation int // Bumped by Begin/Cancel so a stale verification cannot apply
}

func NewChallenge() *Challenge {
	return &Challenge{state: StateIdle}
}

func (c *Challenge) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Challenge) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Begin enters the pending state, retaining the first-factor credential in
// memory. Beginning while a verification is in flight is rejected.
func (c *Challenge) Begin(credential broker.Credential) error {
	if credential == nil {
		return errors.New("[Begin] credential cannot be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateVerifying {
		return ErrVerificationInFlight
	}
	c.state = StatePending
	c.pending = credential
	c.attempts = 0
	c.generation++
	return nil
}

// Cancel discards the pending credential and returns to idle. Safe to call
// from any state; a verification already in flight will find its result
// discarded.
func (c *Challenge) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.pending = nil
	c.generation++
}

// SanitizeCode keeps only digits and caps the result at six characters,
// mirroring what the challenge input field accepts.
func SanitizeCode(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if b.Len() == codeLength {
			break
		}
	}
	return b.String()
}

// Submit verifies a collected code against the backend via verify.
// Malformed codes are rejected before any network call. Verification is
// single-flight: a second submission while one is in progress is suppressed.
// A rejected code returns the challenge to pending so the user may retry.
func (c *Challenge) Submit(ctx context.Context, rawCode string, verify VerifyFunc) error {
	code := SanitizeCode(rawCode)
	if len(code) != codeLength {
		return ErrCodeMalformed
	}

	c.mu.Lock()
	switch c.state {
	case StateVerifying:
		c.mu.Unlock()
		return ErrVerificationInFlight
	case StateIdle:
		c.mu.Unlock()
		return ErrNoPendingChallenge
	}
	c.state = StateVerifying
	credential := c.pending
	generation := c.generation
	c.mu.Unlock()

	err := verify(ctx, credential, code)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation {
		// Challenge was cancelled or restarted mid-verification.
		return ErrNoPendingChallenge
	}

	if err != nil {
		c.state = StatePending
		c.attempts++
		return errors.Wrap(err, "[Submit]")
	}

	c.state = StateIdle
	c.pending = nil
	return nil
}
