package broker

import "github.com/pkg/errors"

var (
	ErrNotConfigured  = errors.New("identity provider client id is not configured")
	ErrCsrfMismatch   = errors.New("oauth state mismatch")
	ErrProvider       = errors.New("identity provider error")
	ErrNoCredential   = errors.New("no credential received")
	ErrUserCancelled  = errors.New("login cancelled by user")
	ErrAlreadyBound   = errors.New("widget callback already registered")
	ErrHandlerMissing = errors.New("no widget callback registered")
)
