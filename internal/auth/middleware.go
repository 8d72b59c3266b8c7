package auth

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Middleware guards HTTP handlers with bearer tokens.
type Middleware struct {
	Tokens *Service
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's id and role in the request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Tokens == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
			return
		}
		token := bearerToken(r)
		if token == "" {
			common.WriteError(w, r, common.Unauthorized("missing or invalid token"))
			return
		}
		claims, err := m.Tokens.Parse(token)
		if err != nil {
			common.WriteError(w, r, common.Unauthorized("missing or invalid token"))
			return
		}
		ctx := common.WithUserID(r.Context(), claims.UserID)
		ctx = common.WithRole(ctx, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only callers whose role is one of roles. It must run after RequireAuth.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := common.Role(r.Context())
			if !ok {
				common.WriteError(w, r, common.Unauthorized("missing or invalid token"))
				return
			}
			for _, allowed := range roles {
				if strings.EqualFold(role, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}
			common.WriteError(w, r, common.Forbidden("insufficient role"))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
