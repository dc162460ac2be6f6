package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmcveigh/portfolio-auth/broker"
	"github.com/jmcveigh/portfolio-auth/identity"
	"github.com/jmcveigh/portfolio-auth/session"
	"github.com/jmcveigh/portfolio-auth/session/apifakes"
	"github.com/jmcveigh/portfolio-auth/storage"
	"github.com/jmcveigh/portfolio-auth/tokens"
	"github.com/jmcveigh/portfolio-auth/twofactor"
)

const (
	testAccessToken  = "access-token-1"
	testRefreshToken = "refresh-token-1"
	testIDToken      = "header.payload.signature"
	testGitHubCode   = "gh-code-1"
	testUserEmail    = "owner@example.com"
	storageKey       = "portfolio.auth.session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	api     *apifakes.FakeTokenAPI
	records *storage.InMemoryStore
	clock   *fakeClock
	store   *session.Store
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	api := apifakes.NewFakeTokenAPI()
	records := storage.NewInMemoryStore()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	store, err := session.NewStore(api, records,
		session.WithNowFunc(clock.Now),
		session.WithDeviceFingerprint("test-device-fingerprint"),
	)
	require.NoError(t, err)

	return &testFixture{api: api, records: records, clock: clock, store: store}
}

func testUser() *identity.Identity {
	return &identity.Identity{
		ID:          "user-1",
		Email:       testUserEmail,
		DisplayName: "Portfolio Owner",
		Roles:       []identity.RoleType{identity.RoleAdmin},
	}
}

func successResponse() *tokens.TokenResponse {
	return &tokens.TokenResponse{
		AccessToken:  testAccessToken,
		RefreshToken: testRefreshToken,
		UserInfo:     testUser(),
	}
}

func TestLoginSuccess(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()

	err := f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken})
	require.NoError(t, err)

	require.True(t, f.store.IsAuthenticated())
	require.NotNil(t, f.store.User())
	require.Equal(t, testUserEmail, f.store.User().Email)
	require.Equal(t, testAccessToken, f.store.AccessToken())
	require.Equal(t, testRefreshToken, f.api.HeldRefresh())
	require.False(t, f.store.IsLoading())
	require.Empty(t, f.store.ErrorMessage())

	secCtx := f.store.SecurityContext()
	require.NotNil(t, secCtx)
	require.NotEmpty(t, secCtx.SessionID)
	require.Equal(t, "test-device-fingerprint", secCtx.DeviceFingerprint)
}

func TestReloginGeneratesFreshSessionID(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()

	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))
	first := f.store.SecurityContext().SessionID

	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))
	second := f.store.SecurityContext().SessionID

	require.NotEqual(t, first, second)
}

func TestLoginRequiresTwoFactor(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = &tokens.TokenResponse{RequiresTwoFactor: true}

	err := f.store.Login(context.Background(), broker.GitHubAuthCode{Code: testGitHubCode})
	require.NoError(t, err)

	require.False(t, f.store.IsAuthenticated())
	require.True(t, f.store.TwoFactorRequired())
	require.Equal(t, twofactor.StatePending, f.store.Challenge().State())

	// The pending credential must never reach persisted storage.
	_, ok, err := f.records.Get(storageKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyTwoFactorCompletesLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = &tokens.TokenResponse{RequiresTwoFactor: true}
	require.NoError(t, f.store.Login(context.Background(), broker.GitHubAuthCode{Code: testGitHubCode}))

	f.api.ExchangeResponse = successResponse()
	err := f.store.VerifyTwoFactor(context.Background(), "123456")
	require.NoError(t, err)

	require.True(t, f.store.IsAuthenticated())
	require.False(t, f.store.TwoFactorRequired())
	require.Equal(t, twofactor.StateIdle, f.store.Challenge().State())

	// The re-submission carried the original credential and the code.
	require.Len(t, f.api.GitHubCalls, 2)
	require.Equal(t, testGitHubCode, f.api.GitHubCalls[1].Credential)
	require.Equal(t, "123456", f.api.GitHubCalls[1].TwoFactorCode)
}

func TestVerifyTwoFactorBadCodeStaysPending(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = &tokens.TokenResponse{RequiresTwoFactor: true}
	require.NoError(t, f.store.Login(context.Background(), broker.GitHubAuthCode{Code: testGitHubCode}))

	f.api.ExchangeErr = &tokens.APIError{Status: 401, Message: "invalid two-factor code"}
	err := f.store.VerifyTwoFactor(context.Background(), "000000")
	require.Error(t, err)

	require.False(t, f.store.IsAuthenticated())
	require.Equal(t, twofactor.StatePending, f.store.Challenge().State())
	require.Equal(t, "invalid two-factor code", f.store.ErrorMessage())

	// Retry with a good code succeeds without restarting first-factor login.
	f.api.ExchangeErr = nil
	f.api.ExchangeResponse = successResponse()
	require.NoError(t, f.store.VerifyTwoFactor(context.Background(), "654321"))
	require.True(t, f.store.IsAuthenticated())
}

func TestCheckSessionValidityWithinThreshold(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()
	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))

	f.clock.Advance(10 * time.Minute)
	require.True(t, f.store.CheckSessionValidity(context.Background()))
	require.True(t, f.store.CheckSessionValidity(context.Background()))
	require.True(t, f.store.IsAuthenticated())
	require.Zero(t, f.api.RevokeCalls)
}

func TestCheckSessionValidityExpiresOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()
	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))

	f.clock.Advance(31 * time.Minute)

	require.False(t, f.store.CheckSessionValidity(context.Background()))
	require.False(t, f.store.IsAuthenticated())
	require.Equal(t, 1, f.api.RevokeCalls)

	// Idempotent: the second call has no further side effect.
	require.False(t, f.store.CheckSessionValidity(context.Background()))
	require.Equal(t, 1, f.api.RevokeCalls)
}

func TestUpdateLastActivityExtendsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()
	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))

	f.clock.Advance(20 * time.Minute)
	f.store.UpdateLastActivity()
	f.clock.Advance(20 * time.Minute)

	require.True(t, f.store.CheckSessionValidity(context.Background()))
}

func TestRehydrateRestoresPersistedSession(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()
	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))
	originalSessionID := f.store.SecurityContext().SessionID

	// A second store sharing the same records simulates a reload.
	reloaded, err := session.NewStore(apifakes.NewFakeTokenAPI(), f.records, session.WithNowFunc(f.clock.Now))
	require.NoError(t, err)

	require.True(t, reloaded.Rehydrate())
	require.True(t, reloaded.IsAuthenticated())
	require.Equal(t, testUserEmail, reloaded.User().Email)
	require.Equal(t, originalSessionID, reloaded.SecurityContext().SessionID)

	// The access token is volatile and must be re-acquired via refresh.
	require.Empty(t, reloaded.AccessToken())
}

func TestRehydrateToleratesCorruptRecord(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.records.Set(storageKey, "@@not-a-valid-blob@@"))

	require.False(t, f.store.Rehydrate())
	require.False(t, f.store.IsAuthenticated())
	require.Nil(t, f.store.User())
}

func TestRehydrateWithNoRecord(t *testing.T) {
	f := setupTestFixture(t)
	require.False(t, f.store.Rehydrate())
	require.False(t, f.store.IsAuthenticated())
}

func TestRehydrateDiscardsExpiredSession(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()
	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))

	f.clock.Advance(31 * time.Minute)

	reloaded, err := session.NewStore(apifakes.NewFakeTokenAPI(), f.records, session.WithNowFunc(f.clock.Now))
	require.NoError(t, err)
	require.False(t, reloaded.Rehydrate())
	require.False(t, reloaded.IsAuthenticated())

	// The stale record is cleaned up rather than lingering for the next load.
	_, ok, err := f.records.Get(storageKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoginRejectsResponseWithoutUser(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = &tokens.TokenResponse{AccessToken: testAccessToken}

	err := f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken})
	require.ErrorIs(t, err, session.ErrMissingUserIdentity)

	// Authenticated state always carries a user; a tokens-only response is a
	// backend fault, not a login.
	require.False(t, f.store.IsAuthenticated())
	require.Nil(t, f.store.User())
	require.Empty(t, f.store.AccessToken())
	require.NotEmpty(t, f.store.ErrorMessage())
}

func TestVerifyTwoFactorRejectsResponseWithoutUser(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = &tokens.TokenResponse{RequiresTwoFactor: true}
	require.NoError(t, f.store.Login(context.Background(), broker.GitHubAuthCode{Code: testGitHubCode}))

	f.api.ExchangeResponse = &tokens.TokenResponse{AccessToken: testAccessToken}
	err := f.store.VerifyTwoFactor(context.Background(), "123456")
	require.ErrorIs(t, err, session.ErrMissingUserIdentity)
	require.False(t, f.store.IsAuthenticated())
}

func TestClearAuthToleratesRevokeFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()
	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))

	f.api.RevokeErr = &tokens.APIError{Status: 0, Message: "authentication service unavailable"}
	f.store.ClearAuth(context.Background())

	require.False(t, f.store.IsAuthenticated())
	require.Nil(t, f.store.User())
	require.Empty(t, f.store.AccessToken())
	require.Nil(t, f.store.SecurityContext())

	_, ok, err := f.records.Get(storageKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoginInFlightIsMutuallyExclusive(t *testing.T) {
	f := setupTestFixture(t)
	f.store.SetLoading(true)

	err := f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken})
	require.ErrorIs(t, err, session.ErrLoginInFlight)
	require.Empty(t, f.api.GoogleCalls)
}

func TestSetErrorDoesNotAlterAuthentication(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()
	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))

	f.store.SetError("something presentational failed")
	require.True(t, f.store.IsAuthenticated())
	require.Equal(t, "something presentational failed", f.store.ErrorMessage())

	f.store.SetError("")
	require.Empty(t, f.store.ErrorMessage())
}

func TestLoginFailureSurfacesServerMessage(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeErr = &tokens.APIError{Status: 403, Message: "account disabled"}

	err := f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken})
	require.Error(t, err)
	require.False(t, f.store.IsAuthenticated())
	require.Equal(t, "account disabled", f.store.ErrorMessage())
}

func TestSubscribeObservesMutations(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()

	var notifications int
	unsubscribe := f.store.Subscribe(func() { notifications++ })
	defer unsubscribe()

	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))
	require.Greater(t, notifications, 0)
}

func TestRefreshAccessTokenAfterRehydrate(t *testing.T) {
	f := setupTestFixture(t)
	f.api.ExchangeResponse = successResponse()
	require.NoError(t, f.store.Login(context.Background(), broker.GoogleIDToken{Token: testIDToken}))

	api := apifakes.NewFakeTokenAPI()
	api.RefreshResponse = &tokens.TokenResponse{AccessToken: "access-token-2", UserInfo: testUser()}
	reloaded, err := session.NewStore(api, f.records, session.WithNowFunc(f.clock.Now))
	require.NoError(t, err)
	require.True(t, reloaded.Rehydrate())

	require.NoError(t, reloaded.RefreshAccessToken(context.Background()))
	require.Equal(t, "access-token-2", reloaded.AccessToken())
	require.Equal(t, 1, api.RefreshCalls)
}
