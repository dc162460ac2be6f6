package stubserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"

	"github.com/jmcveigh/portfolio-auth/identity"
)

type exchangeRequest struct {
	GoogleIDToken string `json:"googleIdToken"`
	GitHubCode    string `json:"githubCode"`
	TwoFactorCode string `json:"twoFactorCode"`
}

type tokenResponse struct {
	AccessToken       string             `json:"accessToken,omitempty"`
	RefreshToken      string             `json:"refreshToken,omitempty"`
	UserInfo          *identity.Identity `json:"userInfo,omitempty"`
	RequiresTwoFactor bool               `json:"requiresTwoFactor"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type twoFactorSetupResponse struct {
	Secret        string `json:"secret"`
	QRCodeDataURI string `json:"qrCodeDataUri"`
}

type twoFactorEnableRequest struct {
	Code   string `json:"code"`
	Secret string `json:"secret"`
}

func (s *Server) handleGoogleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GoogleIDToken == "" {
		writeError(w, http.StatusBadRequest, "missing google id token")
		return
	}
	s.completeExchange(w, r, req.TwoFactorCode)
}

func (s *Server) handleGitHubExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GitHubCode == "" {
		writeError(w, http.StatusBadRequest, "missing github authorization code")
		return
	}
	s.completeExchange(w, r, req.TwoFactorCode)
}

// completeExchange accepts any first-factor credential (this is a local
// fixture) and enforces the second factor when one is enrolled.
func (s *Server) completeExchange(w http.ResponseWriter, r *http.Request, twoFactorCode string) {
	s.mu.Lock()
	user := s.demoUser
	secret := s.totpSecrets[user.ID]
	s.mu.Unlock()

	if secret != "" {
		if twoFactorCode == "" {
			writeJSON(w, http.StatusOK, tokenResponse{RequiresTwoFactor: true})
			return
		}
		if !totp.Validate(twoFactorCode, secret) {
			writeError(w, http.StatusUnauthorized, "invalid two-factor code")
			return
		}
	}

	s.issueTokens(w, r, user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	token := req.RefreshToken
	if token == "" {
		token = s.refreshFromCookie(r)
	}

	s.mu.Lock()
	userID, ok := s.refreshTokens[token]
	if ok {
		delete(s.refreshTokens, token) // rotation: each association is single use
	}
	user := s.demoUser
	s.mu.Unlock()

	if !ok || userID != user.ID {
		writeError(w, http.StatusUnauthorized, "unknown refresh association")
		return
	}

	s.issueTokens(w, r, user)
}

func (s *Server) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	if !hasRole(claimRoles(r), string(identity.RoleAdmin)) {
		writeError(w, http.StatusForbidden, "two-factor enrollment requires the admin role")
		return
	}

	email := claimString(r, "email")
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Portfolio",
		AccountName: email,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not generate secret")
		return
	}
	writeJSON(w, http.StatusOK, twoFactorSetupResponse{
		Secret:        key.Secret(),
		QRCodeDataURI: key.URL(),
	})
}

func (s *Server) handleTwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	var req twoFactorEnableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "missing secret")
		return
	}
	if !totp.Validate(req.Code, req.Secret) {
		writeError(w, http.StatusUnauthorized, "invalid two-factor code")
		return
	}

	s.mu.Lock()
	user := s.demoUser
	s.totpSecrets[user.ID] = req.Secret
	s.mu.Unlock()

	s.issueTokens(w, r, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID := claimString(r, "sub")

	s.mu.Lock()
	for token, owner := range s.refreshTokens {
		if owner == userID {
			delete(s.refreshTokens, token)
		}
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSecurityReport(w http.ResponseWriter, r *http.Request) {
	var report map[string]any
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "malformed report")
		return
	}
	s.logger.Info().Interface("report", report).Msg("security anomaly report received")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) issueTokens(w http.ResponseWriter, r *http.Request, user identity.Identity) {
	accessToken, err := s.issueAccessToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	refreshToken := s.issueRefreshToken(user.ID)
	s.setRefreshCookie(w, r, refreshToken)

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserInfo:     &user,
	})
}

// requireBearer guards authenticated routes by verifying the access JWT.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return s.signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), token.Claims)))
	})
}

func hasRole(roles []string, want string) bool {
	for _, role := range roles {
		if role == want {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
