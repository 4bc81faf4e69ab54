package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/rbac"
)

// InternalUser is a dashboard user of a tenant. ExternalID is the identity
// provider's user id; it is empty while an invitation is still pending.
type InternalUser struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	TenantID   uuid.UUID `db:"tenant_id"   json:"tenant_id"`
	ExternalID string    `db:"external_id" json:"external_id,omitempty"`
	Email      string    `db:"email"       json:"email"`
	FirstName  string    `db:"first_name"  json:"first_name"`
	LastName   string    `db:"last_name"   json:"last_name"`
	Role       rbac.Role `db:"role"        json:"role"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"  json:"updated_at"`
}

// Pending reports whether the user was invited but has not signed up yet.
func (u *InternalUser) Pending() bool { return u.ExternalID == "" }
