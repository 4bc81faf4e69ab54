package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/memberbase/pkg/models"
)

type contextKey string

const (
	externalIDKey contextKey = "external_id"
	tenantKey     contextKey = "tenant"
	memberKey     contextKey = "member"
)

// SetExternalID stores the authenticated identity-provider user id.
func SetExternalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, externalIDKey, id)
}

func GetExternalID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(externalIDKey).(string)
	return id, ok && id != ""
}

// SetTenant stores the tenant resolved from the URL path.
func SetTenant(ctx context.Context, t *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

func GetTenant(r *http.Request) (*models.Tenant, bool) {
	t, ok := r.Context().Value(tenantKey).(*models.Tenant)
	return t, ok && t != nil
}

// SetMember stores the caller's internal user in the path tenant.
func SetMember(ctx context.Context, u *models.InternalUser) context.Context {
	return context.WithValue(ctx, memberKey, u)
}

func GetMember(r *http.Request) (*models.InternalUser, bool) {
	u, ok := r.Context().Value(memberKey).(*models.InternalUser)
	return u, ok && u != nil
}
