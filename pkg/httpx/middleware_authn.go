package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/csis-platform/iam/pkg/jwtx"
	"github.com/csis-platform/iam/pkg/slogx"
)

// TokenRevocationChecker reports whether a presented token has been revoked.
// The token service implements this over the revocation store.
type TokenRevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// AuthnMiddleware verifies the bearer token and injects the principal into
// the request context. When checker is non-nil, revoked tokens are rejected
// even before their natural expiry.
func AuthnMiddleware(v jwtx.Verifier, checker TokenRevocationChecker) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw)
			if err != nil {
				writeBearerError(w, "token verification failed")
				log.Warn("jwt verify failed", "err", err)
				return
			}

			if err := claims.ValidateExpiry(); err != nil {
				writeBearerError(w, "token expired")
				return
			}

			if checker != nil {
				revoked, err := checker.IsRevoked(ctx, raw)
				if err != nil {
					log.Error("revocation check failed", "err", err)
					writeBearerError(w, "token verification failed")
					return
				}
				if revoked {
					writeBearerError(w, "token revoked")
					return
				}
			}

			// Inject into context for downstream handlers.
			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyRoles, c.Roles)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
