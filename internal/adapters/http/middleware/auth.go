package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Authenticator derives a connection identity from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*models.ConnectionIdentity, error)
}

// Auth rejects requests without a valid token and stores the identity on the
// request context.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authenticator.Authenticate(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="counsel"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":   domain.CodeAuthError,
					"message": err.Error(),
					"status":  http.StatusUnauthorized,
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity *models.ConnectionIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFrom returns the identity stored by Auth, or nil.
func IdentityFrom(ctx context.Context) *models.ConnectionIdentity {
	identity, _ := ctx.Value(identityContextKey).(*models.ConnectionIdentity)
	return identity
}
