// Package customer implements customer registration and the dashboard's
// customer management on top of the phone formatter and form validator.
package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/export"
	"github.com/kiranshivaraju/memberbase/internal/phone"
	"github.com/kiranshivaraju/memberbase/internal/store"
	"github.com/kiranshivaraju/memberbase/internal/tenant"
	"github.com/kiranshivaraju/memberbase/internal/validate"
	"github.com/kiranshivaraju/memberbase/pkg/models"
)

// Store is the persistence the customer service needs.
type Store interface {
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetSettings(ctx context.Context, tenantID uuid.UUID) (*models.Settings, error)
	RegisterCustomer(ctx context.Context, slug, name string, c *models.Customer) (*models.Tenant, bool, error)
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error)
	GetCustomerByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*models.Customer, error)
	ListCustomers(ctx context.Context, filter store.CustomerFilter) ([]*models.Customer, int, error)
	AllCustomers(ctx context.Context, tenantID uuid.UUID) ([]*models.Customer, error)
	UpdateCustomer(ctx context.Context, c *models.Customer) error
	DeleteCustomer(ctx context.Context, tenantID, id uuid.UUID) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(s Store) *Service {
	return &Service{store: s, now: time.Now}
}

// WithClock overrides the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Registration is the outcome of a public self-registration.
type Registration struct {
	Customer      *models.Customer `json:"customer"`
	Tenant        *models.Tenant   `json:"tenant"`
	TenantCreated bool             `json:"tenant_created"`
}

// Register handles public self-registration under slug. An unknown slug is
// provisioned together with its first customer in one transaction.
func (s *Service) Register(ctx context.Context, slug string, in validate.CustomerInput) (*Registration, error) {
	if !tenant.ValidSlug(slug) {
		return nil, tenant.ErrInvalidSlug
	}

	t, err := s.store.GetTenantBySlug(ctx, slug)
	switch {
	case errors.Is(err, store.ErrNotFound):
		t = nil
	case err != nil:
		return nil, fmt.Errorf("lookup tenant: %w", err)
	default:
		if t.Settings, err = s.store.GetSettings(ctx, t.ID); err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
	}

	c, err := s.build(in, tenant.CountryOf(t).ISOCode, true, "")
	if err != nil {
		return nil, err
	}
	c.CreatedBy = models.SystemActor()
	c.UpdatedBy = models.SystemActor()

	if t != nil {
		c.TenantID = t.ID
		avail, err := s.CheckAvailability(ctx, c.Phone, t.ID, nil)
		if err != nil {
			return nil, err
		}
		if !avail.Available {
			return nil, &ConflictError{Field: "phone", Message: avail.Reason}
		}
	}

	saved, created, err := s.store.RegisterCustomer(ctx, slug, tenant.DisplayName(slug), c)
	if errors.Is(err, store.ErrDuplicateKey) {
		return nil, s.conflict(ctx, c)
	}
	if err != nil {
		return nil, fmt.Errorf("register customer: %w", err)
	}
	return &Registration{Customer: c, Tenant: saved, TenantCreated: created}, nil
}

// Create adds a customer on behalf of an internal user. Consent is recorded
// as given but not required.
func (s *Service) Create(ctx context.Context, t *models.Tenant, actor models.Actor, in validate.CustomerInput) (*models.Customer, error) {
	c, err := s.build(in, tenant.CountryOf(t).ISOCode, false, "")
	if err != nil {
		return nil, err
	}
	c.TenantID = t.ID
	c.CreatedBy = actor
	c.UpdatedBy = actor

	avail, err := s.CheckAvailability(ctx, c.Phone, t.ID, nil)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, &ConflictError{Field: "phone", Message: avail.Reason}
	}

	if err := s.store.CreateCustomer(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, s.conflict(ctx, c)
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error) {
	return s.store.GetCustomer(ctx, tenantID, id)
}

// Page is one page of a customer listing.
type Page struct {
	Customers []*models.Customer
	Total     int
	Page      int
	Limit     int
}

func (s *Service) List(ctx context.Context, filter store.CustomerFilter) (*Page, error) {
	filter.Normalize()
	rows, total, err := s.store.ListCustomers(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{Customers: rows, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// Update replaces the editable fields of a customer. The customer's own
// phone does not count as a collision.
func (s *Service) Update(ctx context.Context, t *models.Tenant, actor models.Actor, id uuid.UUID, in validate.CustomerInput) (*models.Customer, error) {
	existing, err := s.store.GetCustomer(ctx, t.ID, id)
	if err != nil {
		return nil, err
	}

	c, err := s.build(in, tenant.CountryOf(t).ISOCode, false, existing.Phone)
	if err != nil {
		return nil, err
	}
	c.ID = existing.ID
	c.TenantID = existing.TenantID
	c.CreatedBy = existing.CreatedBy
	c.CreatedAt = existing.CreatedAt
	c.UpdatedBy = actor

	if c.Phone != existing.Phone {
		avail, err := s.CheckAvailability(ctx, c.Phone, t.ID, &existing.ID)
		if err != nil {
			return nil, err
		}
		if !avail.Available {
			return nil, &ConflictError{Field: "phone", Message: avail.Reason}
		}
	}

	if err := s.store.UpdateCustomer(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, s.conflict(ctx, c)
		}
		return nil, err
	}
	return c, nil
}

// Delete removes the customer permanently.
func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.store.DeleteCustomer(ctx, tenantID, id)
}

// Export renders every customer of the tenant as an XLSX workbook.
func (s *Service) Export(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	rows, err := s.store.AllCustomers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return export.Customers(rows)
}

// build validates in and returns an unsaved customer with a canonical phone.
// An input naming the current stored phone keeps it as is, so a tenant that
// changed country can still edit customers registered under the old one.
func (s *Service) build(in validate.CustomerInput, isoCode string, public bool, current string) (*models.Customer, error) {
	now := s.now().UTC()
	errs := validate.Customer(in, validate.Options{RequireConsent: public, Country: isoCode, Now: now})

	var canonical string
	switch {
	case current != "" && keepsPhone(in.Phone, current, isoCode):
		canonical = current
	case strings.TrimSpace(in.Phone) != "":
		res, err := phone.Format(in.Phone, isoCode)
		if err != nil {
			errs.Set("phone", phone.Message(err))
		} else {
			canonical = res.Canonical
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	birth, _ := validate.ParseDate(in.BirthDate)
	return &models.Customer{
		ID:           uuid.New(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        canonical,
		BirthDate:    birth,
		Email:        strings.TrimSpace(in.Email),
		AddressLine1: strings.TrimSpace(in.AddressLine1),
		AddressLine2: strings.TrimSpace(in.AddressLine2),
		City:         strings.TrimSpace(in.City),
		State:        strings.TrimSpace(in.State),
		PostalCode:   strings.TrimSpace(in.PostalCode),
		ConsentGiven: in.ConsentGiven,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// keepsPhone reports whether input denotes the stored number, read either
// under the tenant's country or under the country the number belongs to.
func keepsPhone(input, current, isoCode string) bool {
	if phone.Same(input, current, isoCode) {
		return true
	}
	stored, err := phone.Format(current, isoCode)
	return err == nil && phone.Same(input, current, stored.Country)
}

// conflict turns a unique violation into a message naming the holder when
// it can be found.
func (s *Service) conflict(ctx context.Context, c *models.Customer) error {
	if c.TenantID != uuid.Nil {
		if holder, err := s.store.GetCustomerByPhone(ctx, c.TenantID, c.Phone); err == nil && holder.ID != c.ID {
			return &ConflictError{Field: "phone", Message: takenReason(holder)}
		}
	}
	return &ConflictError{Field: "phone", Message: "This phone number is already registered"}
}
