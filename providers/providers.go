// Package providers holds the identity-provider registry: one entry per
// federated login provider, carrying the oauth2 configuration used to build
// authorize URLs for the popup flow.
package providers

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/jmcveigh/portfolio-auth/internal/config"
)

type Provider string

const (
	Google Provider = "google"
	GitHub Provider = "github"
)

var ErrUnknownProvider = errors.New("unknown identity provider")

// Entry is a configured identity provider. ClientID may be empty when the
// corresponding environment variable is unset; brokers must treat that as a
// configuration error before opening any browsing context.
type Entry struct {
	Provider Provider
	OAuth    *oauth2.Config
}

// Configured reports whether the provider has a client identifier.
func (e *Entry) Configured() bool {
	return e != nil && e.OAuth.ClientID != ""
}

// AuthorizeURL builds the provider authorize URL with the CSRF state token
// and the fixed redirect target embedded.
func (e *Entry) AuthorizeURL(state string) string {
	return e.OAuth.AuthCodeURL(state)
}

// Registry resolves providers by name.
type Registry struct {
	entries map[Provider]*Entry
}

func NewRegistry(cfg config.Config) *Registry {
	redirectURL := strings.TrimSuffix(cfg.GetAppOrigin(), "/") + cfg.GetOAuthRedirectPath()

	return &Registry{entries: map[Provider]*Entry{
		Google: {
			Provider: Google,
			OAuth: &oauth2.Config{
				ClientID:    cfg.GetGoogleClientID(),
				Endpoint:    google.Endpoint,
				RedirectURL: redirectURL,
				Scopes:      []string{"openid", "profile", "email"},
			},
		},
		GitHub: {
			Provider: GitHub,
			OAuth: &oauth2.Config{
				ClientID:    cfg.GetGitHubClientID(),
				Endpoint:    github.Endpoint,
				RedirectURL: redirectURL,
				Scopes:      []string{"read:user", "user:email"},
			},
		},
	}}
}

func (r *Registry) Get(provider Provider) (*Entry, error) {
	entry, ok := r.entries[provider]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "[Registry.Get] %q", provider)
	}
	return entry, nil
}
