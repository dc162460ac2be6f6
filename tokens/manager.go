// Package tokens is the only component permitted to talk to the token-issuing
// endpoints. It encapsulates the rule that the long-lived refresh token never
// reaches client-readable storage: the refresh association travels in the
// HttpOnly cookie carried by the client's jar, and any in-memory fallback copy
// lives in a private Manager field with no accessor.
package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	routeAuthGoogle      = "/auth/google"
	routeAuthGitHub      = "/auth/github"
	routeTwoFactorSetup  = "/auth/2fa/setup"
	routeTwoFactorEnable = "/auth/2fa/enable"
	routeRefresh         = "/auth/refresh"
	routeLogout          = "/auth/logout"

	defaultRequestTimeout = 15 * time.Second
)

// Manager wraps the backend token endpoints.
type Manager struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	lock    sync.Mutex
	refresh string // Server-side refresh association; never exposed or persisted
}

type ManagerOption func(*Manager)

// WithHTTPClient replaces the default client (primarily for testing).
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) {
		m.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func New(baseURL string, options ...ManagerOption) *Manager {
	m := &Manager{
		baseURL: baseURL,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.httpClient == nil {
		// The jar carries any HttpOnly session cookie the backend sets
		// alongside the token response.
		jar, _ := cookiejar.New(nil)
		m.httpClient = &http.Client{Timeout: defaultRequestTimeout, Jar: jar}
	}
	return m
}

// ExchangeGoogle exchanges a Google ID token for a token pair. A non-empty
// twoFactorCode re-submits a pending first factor with its second factor.
func (m *Manager) ExchangeGoogle(ctx context.Context, idToken, twoFactorCode string) (*TokenResponse, error) {
	var resp TokenResponse
	req := googleExchangeRequest{GoogleIDToken: idToken, TwoFactorCode: twoFactorCode}
	if err := m.post(ctx, routeAuthGoogle, req, "", &resp); err != nil {
		return nil, errors.Wrap(err, "[ExchangeGoogle]")
	}
	return &resp, nil
}

// ExchangeGitHub exchanges a GitHub authorization code for a token pair.
func (m *Manager) ExchangeGitHub(ctx context.Context, code, twoFactorCode string) (*TokenResponse, error) {
	var resp TokenResponse
	req := githubExchangeRequest{GitHubCode: code, TwoFactorCode: twoFactorCode}
	if err := m.post(ctx, routeAuthGitHub, req, "", &resp); err != nil {
		return nil, errors.Wrap(err, "[ExchangeGitHub]")
	}
	return &resp, nil
}

// SetupTwoFactor asks the backend for a fresh authenticator secret.
func (m *Manager) SetupTwoFactor(ctx context.Context, accessToken string) (*TwoFactorSetup, error) {
	var resp TwoFactorSetup
	if err := m.post(ctx, routeTwoFactorSetup, nil, accessToken, &resp); err != nil {
		return nil, errors.Wrap(err, "[SetupTwoFactor]")
	}
	return &resp, nil
}

// EnableTwoFactor confirms authenticator enrollment with a code generated
// from the setup secret.
func (m *Manager) EnableTwoFactor(ctx context.Context, accessToken, code, secret string) (*TokenResponse, error) {
	var resp TokenResponse
	req := enableTwoFactorRequest{Code: code, Secret: secret}
	if err := m.post(ctx, routeTwoFactorEnable, req, accessToken, &resp); err != nil {
		return nil, errors.Wrap(err, "[EnableTwoFactor]")
	}
	return &resp, nil
}

// StoreRefreshAssociation adopts the refresh token returned by an exchange.
// The value lives only in this Manager's memory.
func (m *Manager) StoreRefreshAssociation(refreshToken string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.refresh = refreshToken
}

// ClearRefreshAssociation drops the held association without a network call.
func (m *Manager) ClearRefreshAssociation() {
	m.StoreRefreshAssociation("")
}

// Refresh acquires a new token pair. The refresh association normally travels
// in the HttpOnly cookie held by the client's jar, so the request is always
// attempted even when no token is held in memory; a held token is sent in the
// body only as a fallback for clients without cookie support. A rotated
// association in the response replaces the held one.
func (m *Manager) Refresh(ctx context.Context) (*TokenResponse, error) {
	m.lock.Lock()
	refresh := m.refresh
	m.lock.Unlock()

	var body any
	if refresh != "" {
		body = refreshRequest{RefreshToken: refresh}
	}

	var resp TokenResponse
	if err := m.post(ctx, routeRefresh, body, "", &resp); err != nil {
		return nil, errors.Wrap(err, "[Refresh]")
	}
	if resp.RefreshToken != "" {
		m.StoreRefreshAssociation(resp.RefreshToken)
	}
	return &resp, nil
}

// Revoke tells the backend to invalidate the server-side refresh association.
// Callers must treat a returned error as non-fatal: local sign-out always
// proceeds regardless.
func (m *Manager) Revoke(ctx context.Context, accessToken string) error {
	m.ClearRefreshAssociation()
	if err := m.post(ctx, routeLogout, nil, accessToken, nil); err != nil {
		return errors.Wrap(err, "[Revoke]")
	}
	return nil
}

func (m *Manager) post(ctx context.Context, route string, body any, bearer string, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+route, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Debug().Err(err).Str("route", route).Msg("token endpoint unreachable")
		return &APIError{Status: 0, Message: genericNetworkMessage}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return m.mapErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Status: resp.StatusCode, Message: genericNetworkMessage}
	}
	return nil
}

// mapErrorResponse folds every non-2xx response into a single *APIError,
// preferring the server-provided message when the body carries one.
func (m *Manager) mapErrorResponse(resp *http.Response) error {
	message := genericNetworkMessage
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(raw) > 0 {
		var body apiErrorBody
		if err := json.Unmarshal(raw, &body); err == nil {
			if body.Message != "" {
				message = body.Message
			} else if body.Error != "" {
				message = body.Error
			}
		}
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}
