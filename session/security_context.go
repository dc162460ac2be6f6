package session

import (
	"time"

	"github.com/google/uuid"
)

// SecurityContext tracks the per-session security metadata. It is created the
// moment a user identity is set, destroyed when authentication clears, and
// consulted to invalidate the session after the inactivity threshold.
type SecurityContext struct {
	SessionID         string    `json:"sessionId"`         // Random, regenerated at every successful login
	LastActivity      time.Time `json:"lastActivity"`      // Updated on user interaction
	DeviceFingerprint string    `json:"deviceFingerprint"` // Stable per browser/device combination
}

func newSecurityContext(now time.Time, deviceFingerprint string) *SecurityContext {
	return &SecurityContext{
		SessionID:         uuid.New().String(),
		LastActivity:      now,
		DeviceFingerprint: deviceFingerprint,
	}
}

// copy returns a value snapshot so callers never alias the store's own state.
func (sc *SecurityContext) copy() *SecurityContext {
	if sc == nil {
		return nil
	}
	dup := *sc
	return &dup
}
