package config

const (
	googleClientIDVar = "GOOGLE_CLIENT_ID"
	githubClientIDVar = "GITHUB_CLIENT_ID"
)

// ProviderConfig exposes the identity-provider client identifiers. A missing
// client id is a configuration error surfaced to the user by the broker, not
// a crash.
type ProviderConfig interface {
	GetGoogleClientID() string
	GetGitHubClientID() string
	GetOAuthRedirectPath() string
}

type Providers struct{}

var _ ProviderConfig = Providers{}

func (Providers) GetGoogleClientID() string {
	return GetEnv(googleClientIDVar, "")
}

func (Providers) GetGitHubClientID() string {
	return GetEnv(githubClientIDVar, "")
}

// GetOAuthRedirectPath is the fixed redirect target embedded in authorize
// URLs, resolved against the application origin.
func (Providers) GetOAuthRedirectPath() string {
	return "/oauth/callback"
}
