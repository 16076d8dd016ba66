// Package mw contains HTTP middleware for the betlinkr-api.
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/betlinkr/betlinkr-api/internal/auth"
)

// ContextKey is a type for context keys.
type ContextKey string

// AffiliateClaimsKey is the context key for verified affiliate claims.
const AffiliateClaimsKey ContextKey = "affiliate_claims"

// Auth returns middleware that requires a valid dashboard-issued Bearer
// token and stores its claims in the request context.
func Auth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			token := authHeader
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), AffiliateClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns middleware that rejects non-admin sessions. It must
// run after Auth.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetAffiliateClaims(r.Context())
			if claims == nil || !claims.Admin {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetAffiliateClaims retrieves the verified claims from the context, or nil.
func GetAffiliateClaims(ctx context.Context) *auth.AffiliateClaims {
	claims, _ := ctx.Value(AffiliateClaimsKey).(*auth.AffiliateClaims)
	return claims
}
