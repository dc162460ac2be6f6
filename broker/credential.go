// Package broker negotiates a raw, unverified first-factor credential from an
// identity provider. Two strategies are supported: an embedded identity
// widget that yields a signed ID token directly, and a popup OAuth
// negotiation that yields an authorization code via cross-context messaging
// guarded by a CSRF state token.
package broker

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jmcveigh/portfolio-auth/providers"
)

// Credential is the tagged union of raw first-factor credentials. Values are
// validated at the broker boundary; nothing downstream touches an untyped
// payload.
type Credential interface {
	Provider() providers.Provider
}

// GoogleIDToken is a signed OIDC ID token produced by the identity widget.
type GoogleIDToken struct {
	Token string
}

func (GoogleIDToken) Provider() providers.Provider { return providers.Google }

// GitHubAuthCode is an authorization code produced by the popup negotiation.
type GitHubAuthCode struct {
	Code string
}

func (GitHubAuthCode) Provider() providers.Provider { return providers.GitHub }

// validateIDTokenShape checks that a widget credential is at least a
// well-formed compact JWS before it is forwarded. Signature verification is
// the backend's job (or the optional widget verifier's); this only rejects
// payloads that cannot possibly be an ID token.
func validateIDTokenShape(raw string) error {
	if raw == "" {
		return ErrNoCredential
	}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{}); err != nil {
		return errors.Wrap(ErrNoCredential, "malformed id token")
	}
	return nil
}
