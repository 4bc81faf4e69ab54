package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/kiranshivaraju/memberbase/internal/rbac"
	"github.com/kiranshivaraju/memberbase/internal/users"
	"github.com/kiranshivaraju/memberbase/pkg/models"
)

// UserService defines the interface the internal-user handlers depend on.
type UserService interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.InternalUser, error)
	Invite(ctx context.Context, caller *models.InternalUser, t *models.Tenant, in users.InviteInput) (*models.InternalUser, error)
	ChangeRole(ctx context.Context, caller *models.InternalUser, id uuid.UUID, role string) (*models.InternalUser, error)
	Remove(ctx context.Context, caller *models.InternalUser, id uuid.UUID) error
}

type meResponse struct {
	User         *models.InternalUser `json:"user"`
	Tenant       *models.Tenant       `json:"tenant"`
	Capabilities []rbac.Capability    `json:"capabilities"`
}

// NewMeHandler returns an http.HandlerFunc for GET /{tenant}/me.
func NewMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, member, ok := caller(w, r)
		if !ok {
			return
		}
		response.JSON(w, meResponse{User: member, Tenant: t, Capabilities: member.Role.Capabilities()})
	}
}

// NewListUsersHandler returns an http.HandlerFunc for GET /{tenant}/users.
func NewListUsersHandler(svc UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, _, ok := caller(w, r)
		if !ok {
			return
		}
		list, err := svc.List(r.Context(), t.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewInviteUserHandler returns an http.HandlerFunc for POST /{tenant}/users.
func NewInviteUserHandler(svc UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, member, ok := caller(w, r)
		if !ok {
			return
		}
		var in users.InviteInput
		if !decodeJSON(w, r, &in) {
			return
		}

		u, err := svc.Invite(r.Context(), member, t, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, u)
	}
}

// NewChangeRoleHandler returns an http.HandlerFunc for PUT /{tenant}/users/{id}/role.
func NewChangeRoleHandler(svc UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, member, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req struct {
			Role string `json:"role"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		u, err := svc.ChangeRole(r.Context(), member, id, req.Role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}

// NewRemoveUserHandler returns an http.HandlerFunc for DELETE /{tenant}/users/{id}.
func NewRemoveUserHandler(svc UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, member, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := svc.Remove(r.Context(), member, id); err != nil {
			writeError(w, r, err)
			return
		}
		response.OK(w)
	}
}
