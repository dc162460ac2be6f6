package tokens

import "github.com/jmcveigh/portfolio-auth/identity"

// TokenResponse is the success shape shared by every token-issuing endpoint.
// When RequiresTwoFactor is true the first-factor credential was accepted but
// insufficient; no tokens are present and the caller must collect a code.
type TokenResponse struct {
	AccessToken       string             `json:"accessToken"`
	RefreshToken      string             `json:"refreshToken"`
	UserInfo          *identity.Identity `json:"userInfo"`
	RequiresTwoFactor bool               `json:"requiresTwoFactor"`
}

// TwoFactorSetup is returned by the 2FA setup endpoint. The secret is only
// ever displayed to the user for authenticator enrollment; it is not retained.
type TwoFactorSetup struct {
	Secret       string `json:"secret"`
	QRCodeDataURI string `json:"qrCodeDataUri"`
}

type googleExchangeRequest struct {
	GoogleIDToken string `json:"googleIdToken"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

type githubExchangeRequest struct {
	GitHubCode    string `json:"githubCode"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

type enableTwoFactorRequest struct {
	Code   string `json:"code"`
	Secret string `json:"secret"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
