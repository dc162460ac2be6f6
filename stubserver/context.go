package stubserver

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcveigh/portfolio-auth/internal/utils"
)

type contextKey string

const claimsKey contextKey = "claims"

func withClaims(ctx context.Context, claims jwt.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func claimString(r *http.Request, name string) string {
	claims, ok := r.Context().Value(claimsKey).(jwt.MapClaims)
	if !ok {
		return ""
	}
	value, _ := claims[name].(string)
	return value
}

// claimRoles extracts the roles claim from the request's verified token.
func claimRoles(r *http.Request) []string {
	claims, ok := r.Context().Value(claimsKey).(jwt.MapClaims)
	if !ok {
		return nil
	}
	raw, ok := claims["roles"].([]any)
	if !ok {
		return nil
	}
	return utils.ToStringSlice(raw)
}
