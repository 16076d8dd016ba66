package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/betlinkr/betlinkr-api/internal/auth"
)

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

// OperationMetadataKey is the key for storing additional operation requirements.
type OperationMetadataKey string

// MetaKeyRequireAdmin is the metadata key for the admin requirement.
const MetaKeyRequireAdmin OperationMetadataKey = "requireAdmin"

// HumaAuth returns a Huma middleware that authenticates operations whose
// security requirements name the bearer scheme. Claims land in the request
// context under AffiliateClaimsKey.
func HumaAuth(api huma.API, verifier *auth.Verifier) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || !operationRequiresAuth(op) {
			next(ctx)
			return
		}

		authHeader := ctx.Header("Authorization")
		if authHeader == "" {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing authorization header")
			return
		}

		token := authHeader
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid token")
			return
		}

		if requiresAdmin(op) && !claims.Admin {
			huma.WriteErr(api, ctx, http.StatusForbidden, "admin access required")
			return
		}

		newCtx := context.WithValue(ctx.Context(), AffiliateClaimsKey, claims)
		next(huma.WithContext(ctx, newCtx))
	}
}

func operationRequiresAuth(op *huma.Operation) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[SecurityScheme]; ok {
			return true
		}
	}
	return false
}

func requiresAdmin(op *huma.Operation) bool {
	if op.Metadata == nil {
		return false
	}
	if val, ok := op.Metadata[string(MetaKeyRequireAdmin)]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
