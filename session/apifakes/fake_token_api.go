// Package apifakes provides a scriptable in-memory implementation of the
// session.TokenAPI interface for tests.
package apifakes

import (
	"context"
	"sync"

	"github.com/jmcveigh/portfolio-auth/tokens"
)

// FakeTokenAPI records every call and returns scripted responses.
type FakeTokenAPI struct {
	lock sync.Mutex

	// Scripted behavior
	ExchangeResponse *tokens.TokenResponse
	ExchangeErr      error
	RefreshResponse  *tokens.TokenResponse
	RefreshErr       error
	RevokeErr        error

	// Recorded calls
	GoogleCalls  []ExchangeCall
	GitHubCalls  []ExchangeCall
	RefreshCalls int
	RevokeCalls  int

	refresh string
}

type ExchangeCall struct {
	Credential    string
	TwoFactorCode string
}

func NewFakeTokenAPI() *FakeTokenAPI {
	return &FakeTokenAPI{}
}

func (f *FakeTokenAPI) ExchangeGoogle(_ context.Context, idToken, twoFactorCode string) (*tokens.TokenResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.GoogleCalls = append(f.GoogleCalls, ExchangeCall{Credential: idToken, TwoFactorCode: twoFactorCode})
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	return f.ExchangeResponse, nil
}

func (f *FakeTokenAPI) ExchangeGitHub(_ context.Context, code, twoFactorCode string) (*tokens.TokenResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.GitHubCalls = append(f.GitHubCalls, ExchangeCall{Credential: code, TwoFactorCode: twoFactorCode})
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	return f.ExchangeResponse, nil
}

func (f *FakeTokenAPI) Refresh(context.Context) (*tokens.TokenResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.RefreshCalls++
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	return f.RefreshResponse, nil
}

func (f *FakeTokenAPI) Revoke(context.Context, string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.RevokeCalls++
	f.refresh = ""
	return f.RevokeErr
}

func (f *FakeTokenAPI) StoreRefreshAssociation(refreshToken string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refresh = refreshToken
}

func (f *FakeTokenAPI) ClearRefreshAssociation() {
	f.StoreRefreshAssociation("")
}

// HeldRefresh exposes the privately held association for assertions.
func (f *FakeTokenAPI) HeldRefresh() string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.refresh
}
