package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organization. Every customer and internal user belongs to a tenant,
// and the slug is the only discriminator used in queries.
type Tenant struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Slug      string    `db:"slug"       json:"slug"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Settings *Settings `db:"-" json:"settings,omitempty"`
}

// DefaultCountry is the settings country used until an admin picks another one.
const DefaultCountry = "United States"

// Settings holds per-tenant preferences. Exactly one row exists per tenant once read.
type Settings struct {
	TenantID  uuid.UUID `db:"tenant_id"  json:"tenant_id"`
	Country   string    `db:"country"    json:"country"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
