package auth

import (
	"context"
	"net/http"

	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware verifies the bearer token and stores the caller's identity in
// the request context. Requests without a valid token get 401.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	if verifier == nil {
		panic("auth: nil token verifier")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				_ = utils.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}

			identity, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				_ = utils.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole rejects callers without role with 403. It must run after
// Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				_ = utils.WriteError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if identity.Role != role {
				_ = utils.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok && identity.UserID != ""
}
