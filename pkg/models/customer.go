package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a loyalty-program member of a tenant. Phone is always stored in
// canonical E.164 form; (TenantID, Phone) is unique.
type Customer struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	TenantID     uuid.UUID `db:"tenant_id"     json:"tenant_id"`
	FirstName    string    `db:"first_name"    json:"first_name"`
	LastName     string    `db:"last_name"     json:"last_name"`
	Phone        string    `db:"phone"         json:"phone"`
	BirthDate    time.Time `db:"birth_date"    json:"birth_date"`
	Email        string    `db:"email"         json:"email,omitempty"`
	AddressLine1 string    `db:"address_line1" json:"address_line1,omitempty"`
	AddressLine2 string    `db:"address_line2" json:"address_line2,omitempty"`
	City         string    `db:"city"          json:"city,omitempty"`
	State        string    `db:"state"         json:"state,omitempty"`
	PostalCode   string    `db:"postal_code"   json:"postal_code,omitempty"`
	ConsentGiven bool      `db:"consent_given" json:"consent_given"`
	CreatedBy    Actor     `db:"created_by"    json:"created_by"`
	UpdatedBy    Actor     `db:"updated_by"    json:"updated_by"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// FullName joins first and last name for display and conflict messages.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
