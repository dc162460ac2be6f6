// Package stubserver is a development backend implementing the fixed REST
// contract the auth client consumes. It issues real JWTs and validates real
// TOTP codes, but keeps everything in memory: it is a local fixture, not a
// production token service.
package stubserver

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jmcveigh/portfolio-auth/identity"
)

const (
	refreshCookieName = "portfolio_refresh"
	accessTokenExpiry = 15 * time.Minute
)

type Server struct {
	router     chi.Router
	signingKey []byte
	cookies    *sessions.CookieStore
	logger     zerolog.Logger
	nowFunc    func() time.Time

	mu            sync.Mutex
	refreshTokens map[string]string // refresh token -> user id
	totpSecrets   map[string]string // user id -> enabled authenticator secret
	demoUser      identity.Identity
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

// WithTwoFactorSecret pre-enables an authenticator secret for the demo user,
// forcing the two-step login path.
func WithTwoFactorSecret(secret string) Option {
	return func(s *Server) {
		s.totpSecrets[s.demoUser.ID] = secret
	}
}

func New(options ...Option) (*Server, error) {
	signingKey := make([]byte, 32)
	if _, err := rand.Read(signingKey); err != nil {
		return nil, errors.Wrap(err, "[New] signing key")
	}

	s := &Server{
		signingKey:    signingKey,
		cookies:       sessions.NewCookieStore(signingKey),
		logger:        zerolog.Nop(),
		nowFunc:       time.Now,
		refreshTokens: make(map[string]string),
		totpSecrets:   make(map[string]string),
		demoUser: identity.Identity{
			ID:          uuid.New().String(),
			Email:       "owner@example.com",
			DisplayName: "Portfolio Owner",
			Roles:       []identity.RoleType{identity.RoleAdmin},
			CreatedAt:   time.Now().UTC(),
		},
	}
	for _, opt := range options {
		opt(s)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Post("/auth/google", s.handleGoogleExchange)
	router.Post("/auth/github", s.handleGitHubExchange)
	router.Post("/auth/refresh", s.handleRefresh)
	router.Post("/security/report", s.handleSecurityReport)

	router.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/auth/2fa/setup", s.handleTwoFactorSetup)
		r.Post("/auth/2fa/enable", s.handleTwoFactorEnable)
		r.Post("/auth/logout", s.handleLogout)
	})

	s.router = router
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// issueAccessToken mints a short-lived JWT for the demo user.
func (s *Server) issueAccessToken(user identity.Identity) (string, error) {
	now := s.nowFunc()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.DisplayName,
		"roles": user.Roles,
		"iat":   now.Unix(),
		"exp":   now.Add(accessTokenExpiry).Unix(),
		"jti":   uuid.New().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// issueRefreshToken mints and records an opaque refresh token.
func (s *Server) issueRefreshToken(userID string) string {
	buf := make([]byte, 32)
	rand.Read(buf)
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.refreshTokens[token] = userID
	s.mu.Unlock()
	return token
}

// setRefreshCookie records the refresh association in an HttpOnly cookie so
// a cookie-jar client can refresh without ever reading the token.
func (s *Server) setRefreshCookie(w http.ResponseWriter, r *http.Request, refreshToken string) {
	cookieSession, _ := s.cookies.Get(r, refreshCookieName)
	cookieSession.Values["refreshToken"] = refreshToken
	cookieSession.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
	}
	if err := cookieSession.Save(r, w); err != nil {
		s.logger.Warn().Err(err).Msg("failed to save refresh cookie")
	}
}

func (s *Server) refreshFromCookie(r *http.Request) string {
	cookieSession, err := s.cookies.Get(r, refreshCookieName)
	if err != nil {
		return ""
	}
	token, _ := cookieSession.Values["refreshToken"].(string)
	return token
}
