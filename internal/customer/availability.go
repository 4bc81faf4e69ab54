package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/phone"
	"github.com/kiranshivaraju/memberbase/internal/store"
	"github.com/kiranshivaraju/memberbase/pkg/models"
)

// Availability is the advisory answer to "can this phone be registered".
// The unique index on (tenant, phone) is what actually decides.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// PhoneCheck is the result of formatting a phone and checking availability.
type PhoneCheck struct {
	Availability
	Canonical string `json:"canonical,omitempty"`
	Country   string `json:"country,omitempty"`
	Display   string `json:"display,omitempty"`
}

const notCanonicalReason = "Phone number must be in international format (e.g. +15551234567)"

// CheckAvailability reports whether canonical is free in the tenant. The
// excluded customer's own number never collides with itself. Input that is
// not canonical is rejected without a lookup.
func (s *Service) CheckAvailability(ctx context.Context, canonical string, tenantID uuid.UUID, excludeID *uuid.UUID) (Availability, error) {
	if !phone.IsCanonical(canonical) {
		return Availability{Reason: notCanonicalReason}, nil
	}
	holder, err := s.store.GetCustomerByPhone(ctx, tenantID, canonical)
	if errors.Is(err, store.ErrNotFound) {
		return Availability{Available: true}, nil
	}
	if err != nil {
		return Availability{}, fmt.Errorf("check phone availability: %w", err)
	}
	if excludeID != nil && holder.ID == *excludeID {
		return Availability{Available: true}, nil
	}
	return Availability{Reason: takenReason(holder)}, nil
}

// ValidatePhone formats input under isoCode and, when that succeeds, checks
// availability in t. A format failure returns before any storage access. A
// nil tenant is one not provisioned yet, where nothing can collide.
func (s *Service) ValidatePhone(ctx context.Context, t *models.Tenant, input, isoCode string, excludeID *uuid.UUID) (PhoneCheck, error) {
	res, err := phone.Format(input, isoCode)
	if err != nil {
		return PhoneCheck{Availability: Availability{Reason: phone.Message(err)}}, nil
	}
	check := PhoneCheck{
		Canonical: res.Canonical,
		Country:   res.Country,
		Display:   phone.Display(res.Canonical, phone.International),
	}
	if t == nil {
		check.Available = true
		return check, nil
	}
	check.Availability, err = s.CheckAvailability(ctx, res.Canonical, t.ID, excludeID)
	if err != nil {
		return PhoneCheck{}, err
	}
	return check, nil
}

func takenReason(holder *models.Customer) string {
	return "This phone number is already registered to " + holder.FullName()
}
