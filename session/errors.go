package session

import "github.com/pkg/errors"

var (
	ErrLoginInFlight       = errors.New("a login attempt is already in progress")
	ErrSessionExpired      = errors.New("session expired after inactivity")
	ErrUnknownCredential   = errors.New("unsupported credential type")
	ErrMissingUserIdentity = errors.New("token response did not include a user identity")
)
