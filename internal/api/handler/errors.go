package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	mw "github.com/kiranshivaraju/memberbase/internal/api/middleware"
	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/kiranshivaraju/memberbase/internal/customer"
	"github.com/kiranshivaraju/memberbase/internal/identity"
	"github.com/kiranshivaraju/memberbase/internal/rbac"
	"github.com/kiranshivaraju/memberbase/internal/store"
	"github.com/kiranshivaraju/memberbase/internal/tenant"
	"github.com/kiranshivaraju/memberbase/internal/users"
	"github.com/kiranshivaraju/memberbase/internal/validate"
	"github.com/kiranshivaraju/memberbase/pkg/models"
	"github.com/rs/zerolog/hlog"
)

const maxBodyBytes = 1 << 20

// writeError maps a service error onto the response taxonomy. Anything not
// recognised is logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs    validate.Errors
		conflict *customer.ConflictError
	)
	switch {
	case errors.As(err, &verrs):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"Please correct the highlighted fields", verrs)
	case errors.As(err, &conflict):
		response.Error(w, http.StatusConflict, "CONFLICT", conflict.Message, conflict.Details())
	case errors.Is(err, users.ErrEmailTaken):
		response.Error(w, http.StatusConflict, "CONFLICT", "A user with this email already exists",
			validate.Single("email", "A user with this email already exists"))
	case errors.Is(err, rbac.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
	case errors.Is(err, users.ErrSelfModification):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "You cannot change your own role or remove yourself", nil)
	case errors.Is(err, tenant.ErrInvalidSlug):
		response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Tenant not found", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case errors.Is(err, identity.ErrIdentityUnavailable), errors.Is(err, identity.ErrIdentityRejected):
		hlog.FromRequest(r).Warn().Err(err).Msg("identity provider call failed")
		response.Error(w, http.StatusBadGateway, "IDENTITY_PROVIDER_ERROR",
			"The invitation could not be sent, please try again later", nil)
	default:
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

// caller returns the tenant and member set by the tenant middleware chain.
func caller(w http.ResponseWriter, r *http.Request) (*models.Tenant, *models.InternalUser, bool) {
	t, ok := mw.GetTenant(r)
	if !ok {
		response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Tenant not found", nil)
		return nil, nil, false
	}
	m, ok := mw.GetMember(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing or invalid Authorization header", nil)
		return nil, nil, false
	}
	return t, m, true
}
