// Package session holds the single source of truth for "who is logged in"
// and "are we mid-operation". All mutation happens through the store's
// declared actions; UI layers observe state through accessors and
// subscriptions, never by direct field access.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jmcveigh/portfolio-auth/broker"
	"github.com/jmcveigh/portfolio-auth/identity"
	"github.com/jmcveigh/portfolio-auth/tokens"
	"github.com/jmcveigh/portfolio-auth/twofactor"
)

const defaultInactivityThreshold = 30 * time.Minute

// TokenAPI is the slice of the token lifecycle manager the store depends on.
type TokenAPI interface {
	ExchangeGoogle(ctx context.Context, idToken, twoFactorCode string) (*tokens.TokenResponse, error)
	ExchangeGitHub(ctx context.Context, code, twoFactorCode string) (*tokens.TokenResponse, error)
	Refresh(ctx context.Context) (*tokens.TokenResponse, error)
	Revoke(ctx context.Context, accessToken string) error
	StoreRefreshAssociation(refreshToken string)
	ClearRefreshAssociation()
}

// Store is the process-wide authentication state container. It is safe for
// concurrent use; actions are applied in the order they are invoked and no
// action re-enters another synchronously.
type Store struct {
	api       TokenAPI
	records   recordStore
	challenge *twofactor.Challenge
	logger    zerolog.Logger

	nowFunc           func() time.Time
	inactivity        time.Duration
	deviceFingerprint string

	mu                sync.Mutex
	user              *identity.Identity
	accessToken       string // Volatile only; never persisted
	authenticated     bool
	loading           bool
	errMsg            string
	twoFactorRequired bool
	secCtx            *SecurityContext

	listenersMu sync.Mutex
	listeners   []func()
}

// recordStore is the durable storage surface the store persists into.
type recordStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

type StoreOption func(*Store)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithInactivityThreshold(threshold time.Duration) StoreOption {
	return func(s *Store) {
		s.inactivity = threshold
	}
}

func WithDeviceFingerprint(fp string) StoreOption {
	return func(s *Store) {
		s.deviceFingerprint = fp
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(api TokenAPI, records recordStore, options ...StoreOption) (*Store, error) {
	if api == nil {
		return nil, errors.New("[NewStore] token api is required")
	}
	if records == nil {
		return nil, errors.New("[NewStore] record store is required")
	}

	s := &Store{
		api:        api,
		records:    records,
		challenge:  twofactor.NewChallenge(),
		logger:     zerolog.Nop(),
		nowFunc:    time.Now,
		inactivity: defaultInactivityThreshold,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Subscribe registers a listener invoked after every state mutation. The
// returned function removes the listener.
func (s *Store) Subscribe(listener func()) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, listener)
	index := len(s.listeners) - 1
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		if index < len(s.listeners) {
			s.listeners[index] = nil
		}
	}
}

func (s *Store) notify() {
	s.listenersMu.Lock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()
	for _, listener := range listeners {
		if listener != nil {
			listener()
		}
	}
}

// SetUser installs the signed-in identity, marks the session authenticated,
// clears any error, and regenerates the security context with a fresh
// session id.
func (s *Store) SetUser(user *identity.Identity) {
	s.mu.Lock()
	s.user = user
	s.authenticated = true
	s.errMsg = ""
	s.secCtx = newSecurityContext(s.nowFunc(), s.deviceFingerprint)
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
}

// SetTokens stores the access token in memory and hands the refresh token to
// the lifecycle manager for server-side association. The refresh token is
// never stored client-side in readable form.
func (s *Store) SetTokens(accessToken, refreshToken string) {
	s.api.StoreRefreshAssociation(refreshToken)
	s.mu.Lock()
	s.accessToken = accessToken
	s.authenticated = true
	s.mu.Unlock()
	s.notify()
}

// ClearAuth revokes the server-side refresh association, then wipes all local
// authentication state. Revocation failures are logged and ignored: local
// sign-out always succeeds.
func (s *Store) ClearAuth(ctx context.Context) {
	s.mu.Lock()
	accessToken := s.accessToken
	s.mu.Unlock()

	if err := s.api.Revoke(ctx, accessToken); err != nil {
		s.logger.Warn().Err(err).Msg("logout revocation failed; clearing local state anyway")
	}

	s.mu.Lock()
	s.user = nil
	s.accessToken = ""
	s.authenticated = false
	s.errMsg = ""
	s.twoFactorRequired = false
	s.secCtx = nil
	if err := s.records.Delete(storageKey); err != nil {
		s.logger.Warn().Err(err).Msg("failed to delete persisted session")
	}
	s.mu.Unlock()

	s.challenge.Cancel()
	s.notify()
}

// SetLoading toggles the mid-operation flag. Transitions are idempotent
// guards, not a strict lock.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	changed := s.loading != loading
	s.loading = loading
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// SetError surfaces a UI-facing error message. An empty message clears it.
// Authentication state is never altered here.
func (s *Store) SetError(message string) {
	s.mu.Lock()
	s.errMsg = message
	s.mu.Unlock()
	s.notify()
}

// SetTwoFactorRequired toggles whether the UI must render the challenge step.
func (s *Store) SetTwoFactorRequired(required bool) {
	s.mu.Lock()
	s.twoFactorRequired = required
	s.mu.Unlock()
	s.notify()
}

// Login exchanges a first-factor credential for tokens. When the backend
// reports the credential valid but insufficient, the store enters the
// two-factor pending state instead of authenticating.
func (s *Store) Login(ctx context.Context, credential broker.Credential) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrLoginInFlight
	}
	s.loading = true
	s.mu.Unlock()
	s.notify()
	defer s.SetLoading(false)

	resp, err := s.exchange(ctx, credential, "")
	if err != nil {
		s.SetError(errorMessage(err))
		return errors.Wrap(err, "[Login]")
	}

	if resp.RequiresTwoFactor {
		if err := s.challenge.Begin(credential); err != nil {
			s.SetError(errorMessage(err))
			return errors.Wrap(err, "[Login] begin challenge")
		}
		s.SetTwoFactorRequired(true)
		return nil
	}

	if err := s.completeLogin(resp); err != nil {
		s.SetError(errorMessage(err))
		return errors.Wrap(err, "[Login]")
	}
	return nil
}

// VerifyTwoFactor re-submits the pending first-factor credential with the
// collected code. Success behaves like a completed login; failure surfaces an
// error and leaves the pending flag set so the user may retry or cancel.
func (s *Store) VerifyTwoFactor(ctx context.Context, code string) error {
	var completed *tokens.TokenResponse

	err := s.challenge.Submit(ctx, code, func(ctx context.Context, credential broker.Credential, code string) error {
		resp, err := s.exchange(ctx, credential, code)
		if err != nil {
			return err
		}
		completed = resp
		return nil
	})
	if err != nil {
		s.SetError(errorMessage(err))
		return errors.Wrap(err, "[VerifyTwoFactor]")
	}

	if err := s.completeLogin(completed); err != nil {
		s.SetError(errorMessage(err))
		return errors.Wrap(err, "[VerifyTwoFactor]")
	}
	return nil
}

// CancelTwoFactor abandons the challenge, discarding the pending credential.
func (s *Store) CancelTwoFactor() {
	s.challenge.Cancel()
	s.SetTwoFactorRequired(false)
}

// UpdateLastActivity refreshes the activity timestamp. Called on any
// interaction the surrounding application considers activity.
func (s *Store) UpdateLastActivity() {
	s.mu.Lock()
	if s.secCtx != nil {
		s.secCtx.LastActivity = s.nowFunc()
		s.persistLocked()
	}
	s.mu.Unlock()
}

// CheckSessionValidity reports whether the session is still live. Crossing
// the inactivity threshold triggers the same cleanup path as explicit logout.
// The check is idempotent: repeated calls within the threshold have no side
// effect, and only the first call after expiry clears state.
func (s *Store) CheckSessionValidity(ctx context.Context) bool {
	s.mu.Lock()
	if !s.authenticated || s.secCtx == nil {
		s.mu.Unlock()
		return false
	}
	expired := s.nowFunc().Sub(s.secCtx.LastActivity) > s.inactivity
	s.mu.Unlock()

	if expired {
		s.logger.Info().Msg("session expired after inactivity; signing out")
		s.ClearAuth(ctx)
		return false
	}
	return true
}

// Rehydrate restores the persisted identity and security context from
// storage. The restore is optimistic: the access token is not persisted, so
// authenticated calls fail until RefreshAccessToken succeeds. A missing or
// undecodable record leaves the store signed out, as does a record whose last
// activity already exceeds the inactivity threshold.
func (s *Store) Rehydrate() bool {
	state := s.loadPersisted()
	if state == nil {
		return false
	}

	if s.nowFunc().Sub(state.SecurityContext.LastActivity) > s.inactivity {
		s.logger.Info().Err(ErrSessionExpired).Msg("discarding persisted session")
		if err := s.records.Delete(storageKey); err != nil {
			s.logger.Warn().Err(err).Msg("failed to delete expired persisted session")
		}
		return false
	}

	s.mu.Lock()
	s.user = state.User
	s.secCtx = state.SecurityContext
	s.authenticated = true
	s.mu.Unlock()
	s.notify()
	return true
}

// RefreshAccessToken re-acquires the volatile access token via the
// server-side refresh association.
func (s *Store) RefreshAccessToken(ctx context.Context) error {
	resp, err := s.api.Refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "[RefreshAccessToken]")
	}

	s.mu.Lock()
	s.accessToken = resp.AccessToken
	s.authenticated = true
	if resp.UserInfo != nil {
		s.user = resp.UserInfo
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// completeLogin applies a successful token response. A response without a user
// identity is rejected: authenticated state always carries a non-nil user.
func (s *Store) completeLogin(resp *tokens.TokenResponse) error {
	if resp == nil || resp.UserInfo == nil {
		return ErrMissingUserIdentity
	}
	s.SetUser(resp.UserInfo)
	s.SetTokens(resp.AccessToken, resp.RefreshToken)
	s.SetTwoFactorRequired(false)
	return nil
}

// exchange routes a credential to the matching provider endpoint.
func (s *Store) exchange(ctx context.Context, credential broker.Credential, twoFactorCode string) (*tokens.TokenResponse, error) {
	switch cred := credential.(type) {
	case broker.GoogleIDToken:
		return s.api.ExchangeGoogle(ctx, cred.Token, twoFactorCode)
	case broker.GitHubAuthCode:
		return s.api.ExchangeGitHub(ctx, cred.Code, twoFactorCode)
	default:
		return nil, errors.Wrapf(ErrUnknownCredential, "%T", credential)
	}
}

// errorMessage reduces a broker- or manager-level failure to the single
// string surfaced through the store's error field.
func errorMessage(err error) string {
	var apiErr *tokens.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// --- accessors ---

func (s *Store) User() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *Store) TwoFactorRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.twoFactorRequired
}

// SecurityContext returns a snapshot of the current security context, or nil
// when signed out.
func (s *Store) SecurityContext() *SecurityContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secCtx.copy()
}

// Challenge exposes the two-factor sub-flow for UI state rendering.
func (s *Store) Challenge() *twofactor.Challenge {
	return s.challenge
}
