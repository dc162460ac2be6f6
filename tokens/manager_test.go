package tokens_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/jmcveigh/portfolio-auth/stubserver"
	"github.com/jmcveigh/portfolio-auth/tokens"
)

func setupBackend(t *testing.T, options ...stubserver.Option) (*httptest.Server, *tokens.Manager) {
	t.Helper()
	backend, err := stubserver.New(options...)
	require.NoError(t, err)
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	return server, tokens.New(server.URL)
}

func TestExchangeGoogleSuccess(t *testing.T) {
	_, manager := setupBackend(t)

	resp, err := manager.ExchangeGoogle(context.Background(), "header.payload.sig", "")
	require.NoError(t, err)
	require.False(t, resp.RequiresTwoFactor)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.NotNil(t, resp.UserInfo)
	require.Equal(t, "owner@example.com", resp.UserInfo.Email)
}

func TestExchangeGitHubSuccess(t *testing.T) {
	_, manager := setupBackend(t)

	resp, err := manager.ExchangeGitHub(context.Background(), "gh-code", "")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
}

func TestExchangeRequiresTwoFactor(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "Portfolio", AccountName: "owner@example.com"})
	require.NoError(t, err)
	_, manager := setupBackend(t, stubserver.WithTwoFactorSecret(key.Secret()))

	// First factor alone is insufficient.
	resp, err := manager.ExchangeGitHub(context.Background(), "gh-code", "")
	require.NoError(t, err)
	require.True(t, resp.RequiresTwoFactor)
	require.Empty(t, resp.AccessToken)

	// Re-submission with the current code completes the login.
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	resp, err = manager.ExchangeGitHub(context.Background(), "gh-code", code)
	require.NoError(t, err)
	require.False(t, resp.RequiresTwoFactor)
	require.NotEmpty(t, resp.AccessToken)
}

func TestExchangeBadTwoFactorCode(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "Portfolio", AccountName: "owner@example.com"})
	require.NoError(t, err)
	_, manager := setupBackend(t, stubserver.WithTwoFactorSecret(key.Secret()))

	_, err = manager.ExchangeGitHub(context.Background(), "gh-code", "000000")
	var apiErr *tokens.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "invalid two-factor code", apiErr.Message)
	require.True(t, tokens.IsSecondFactorRejection(err))
}

func TestRefreshRotatesAssociation(t *testing.T) {
	_, manager := setupBackend(t)

	resp, err := manager.ExchangeGoogle(context.Background(), "header.payload.sig", "")
	require.NoError(t, err)
	manager.StoreRefreshAssociation(resp.RefreshToken)

	refreshed, err := manager.Refresh(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	require.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	// The rotated association is adopted automatically.
	again, err := manager.Refresh(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, again.AccessToken)
}

func TestRefreshUsesCookieAssociation(t *testing.T) {
	_, manager := setupBackend(t)

	// The exchange sets the HttpOnly refresh cookie in the client's jar.
	_, err := manager.ExchangeGoogle(context.Background(), "header.payload.sig", "")
	require.NoError(t, err)

	// Even with no token held in memory, the request is attempted and the
	// cookie carries the association.
	manager.ClearRefreshAssociation()
	refreshed, err := manager.Refresh(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
}

func TestRefreshWithoutAnyAssociationRejected(t *testing.T) {
	_, manager := setupBackend(t)

	// No exchange happened: no cookie, no held token. The backend decides.
	_, err := manager.Refresh(context.Background())
	var apiErr *tokens.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestRevokeInvalidatesRefreshAssociation(t *testing.T) {
	_, manager := setupBackend(t)

	login, err := manager.ExchangeGoogle(context.Background(), "header.payload.sig", "")
	require.NoError(t, err)
	require.NoError(t, manager.Revoke(context.Background(), login.AccessToken))

	// Both the held token and the cookie association are dead server-side.
	_, err = manager.Refresh(context.Background())
	var apiErr *tokens.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestRevokeSurfacesNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // unreachable backend
	manager := tokens.New(server.URL)
	manager.StoreRefreshAssociation("refresh-1")

	// Callers treat the error as non-fatal; local sign-out proceeds anyway.
	err := manager.Revoke(context.Background(), "access-1")
	var apiErr *tokens.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "authentication service unavailable", apiErr.Message)
}

func TestSetupAndEnableTwoFactor(t *testing.T) {
	_, manager := setupBackend(t)

	login, err := manager.ExchangeGoogle(context.Background(), "header.payload.sig", "")
	require.NoError(t, err)

	setup, err := manager.SetupTwoFactor(context.Background(), login.AccessToken)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.QRCodeDataURI, "otpauth://")

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	enabled, err := manager.EnableTwoFactor(context.Background(), login.AccessToken, code, setup.Secret)
	require.NoError(t, err)
	require.NotEmpty(t, enabled.AccessToken)

	// Subsequent logins now require the second factor.
	resp, err := manager.ExchangeGoogle(context.Background(), "header.payload.sig", "")
	require.NoError(t, err)
	require.True(t, resp.RequiresTwoFactor)
}

func TestNonSuccessMappedToAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"account disabled"}`))
	}))
	t.Cleanup(server.Close)
	manager := tokens.New(server.URL)

	_, err := manager.ExchangeGoogle(context.Background(), "header.payload.sig", "")
	var apiErr *tokens.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "account disabled", apiErr.Message)
}

func TestTransportFailureUsesGenericMessage(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	manager := tokens.New(server.URL)

	_, err := manager.ExchangeGoogle(context.Background(), "header.payload.sig", "")
	var apiErr *tokens.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Zero(t, apiErr.Status)
	require.Equal(t, "authentication service unavailable", apiErr.Message)
}

func TestUnauthenticatedTwoFactorSetupRejected(t *testing.T) {
	_, manager := setupBackend(t)

	_, err := manager.SetupTwoFactor(context.Background(), "not-a-valid-token")
	var apiErr *tokens.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
