package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/kiranshivaraju/memberbase/internal/store"
	"github.com/kiranshivaraju/memberbase/internal/tenant"
	"github.com/kiranshivaraju/memberbase/internal/users"
	"github.com/kiranshivaraju/memberbase/pkg/models"
	"github.com/rs/zerolog/hlog"
)

// TenantParam is the chi URL parameter holding the tenant slug.
const TenantParam = "tenant"

// TenantResolver loads a tenant by slug.
type TenantResolver interface {
	Resolve(ctx context.Context, slug string) (*models.Tenant, error)
}

// MemberLookup finds the caller's internal user within a tenant.
type MemberLookup interface {
	Member(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.InternalUser, error)
}

// Tenant resolves the {tenant} path segment. Unknown and malformed slugs are
// both answered with 404.
func Tenant(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := resolver.Resolve(r.Context(), chi.URLParam(r, TenantParam))
			switch {
			case errors.Is(err, store.ErrNotFound), errors.Is(err, tenant.ErrInvalidSlug):
				response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Tenant not found", nil)
				return
			case err != nil:
				hlog.FromRequest(r).Error().Err(err).Msg("resolve tenant")
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetTenant(r.Context(), t)))
		})
	}
}

// Membership requires the authenticated caller to be an internal user of
// the resolved tenant. It must run after Authenticate and Tenant.
func Membership(members MemberLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			externalID, ok := GetExternalID(r)
			if !ok {
				response.Error(w, http.StatusUnauthorized,
					"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
				return
			}
			t, ok := GetTenant(r)
			if !ok {
				response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Tenant not found", nil)
				return
			}

			member, err := members.Member(r.Context(), t.ID, externalID)
			switch {
			case errors.Is(err, users.ErrNotMember):
				response.Error(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
				return
			case err != nil:
				hlog.FromRequest(r).Error().Err(err).Msg("lookup member")
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetMember(r.Context(), member)))
		})
	}
}
