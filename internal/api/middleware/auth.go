package middleware

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/kiranshivaraju/memberbase/internal/rbac"
)

// TokenVerifier turns a session token into the identity provider's user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Auth provides authentication and capability-checking middleware.
type Auth struct {
	verifier TokenVerifier
}

// NewAuth creates a new Auth middleware.
func NewAuth(v TokenVerifier) *Auth {
	return &Auth{verifier: v}
}

// Authenticate validates the Bearer session token and sets the caller's
// external id in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		externalID, err := a.verifier.Verify(token)
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid or expired session", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetExternalID(r.Context(), externalID)))
	})
}

// RequireCapability returns middleware that checks the caller's role in the
// path tenant grants c. It must run after Membership.
func RequireCapability(c rbac.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			member, ok := GetMember(r)
			if !ok || rbac.Authorize(member.Role, c) != nil {
				response.Error(w, http.StatusForbidden,
					"FORBIDDEN", "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
