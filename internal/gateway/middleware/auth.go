package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/saransh1220/s3files/internal/shared/utils"
)

type contextKey string

const (
	ContextKeyUserId contextKey = "user_id"
	ContextKeyRole   contextKey = "role"
)

type AuthMiddleWare struct {
	jwtSecret string
}

// NewAuthMiddleware validates bearer tokens signed with jwtSecret.
func NewAuthMiddleware(jwtSecret string) *AuthMiddleWare {
	return &AuthMiddleWare{jwtSecret: jwtSecret}
}

// bearerToken reads "Authorization: Bearer <token>". Browsers cannot set
// headers on a websocket handshake, so allowQuery also accepts ?token=.
func bearerToken(r *http.Request, allowQuery bool) string {
	if parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}

func withClaims(r *http.Request, claims *utils.CustomClaims) *http.Request {
	ctx := context.WithValue(r.Context(), ContextKeyUserId, claims.UserID)
	ctx = context.WithValue(ctx, ContextKeyRole, claims.Role)
	return r.WithContext(ctx)
}

// RequireAuth rejects requests without a valid bearer header and puts the
// user ID and role into the request context.
func (m *AuthMiddleWare) RequireAuth(next http.Handler) http.Handler {
	return m.requireAuth(next, false)
}

// RequireAuthWebSocket is RequireAuth that also accepts ?token=. Only the
// websocket handshake should use it; query strings end up in access logs.
func (m *AuthMiddleWare) RequireAuthWebSocket(next http.Handler) http.Handler {
	return m.requireAuth(next, true)
}

func (m *AuthMiddleWare) requireAuth(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r, allowQuery)
		if tokenStr == "" {
			utils.WriteError(w, http.StatusUnauthorized, "missing or invalid authorization", nil)
			return
		}

		claims, err := utils.ValidateToken(tokenStr, m.jwtSecret)
		if err != nil {
			utils.WriteError(w, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		next.ServeHTTP(w, withClaims(r, claims))
	})
}

// FlexibleAuth identifies the caller when a valid bearer token is present
// and otherwise serves the request anonymously.
func (m *AuthMiddleWare) FlexibleAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenStr := bearerToken(r, false); tokenStr != "" {
			if claims, err := utils.ValidateToken(tokenStr, m.jwtSecret); err == nil {
				r = withClaims(r, claims)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// UserID returns the authenticated user, if any.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ContextKeyUserId).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
