package middleware

import (
	"context"
	"liveclass/internal/model"
	"liveclass/internal/service"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "callerIdentity"

// AuthMiddleware resolves the bearer credential into a CallerIdentity.
// Token validation itself belongs to the identity collaborator; this layer
// only consumes its tokens.
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireUser validates the JWT from the Authorization header (or the
// token query param, for WebSocket clients) and stores the caller
// identity in the request context.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, `{"error":"missing authorization"}`, http.StatusUnauthorized)
			return
		}

		caller, err := m.authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCaller extracts the caller identity from context.
func GetCaller(ctx context.Context) model.CallerIdentity {
	if v := ctx.Value(identityKey); v != nil {
		return v.(model.CallerIdentity)
	}
	return model.CallerIdentity{}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
