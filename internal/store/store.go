package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/rbac"
	"github.com/kiranshivaraju/memberbase/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrTenantExists is returned by CreateTenantWithUser when the slug is taken.
var ErrTenantExists = errors.New("tenant already exists")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	// GetSettings returns the tenant's settings, inserting the default row on first read.
	GetSettings(ctx context.Context, tenantID uuid.UUID) (*models.Settings, error)
	UpdateSettingsCountry(ctx context.Context, tenantID uuid.UUID, country string) (*models.Settings, error)

	// RegisterCustomer ensures the tenant exists and inserts the customer in
	// one transaction, so a failed insert never leaves a new tenant behind.
	RegisterCustomer(ctx context.Context, slug, name string, c *models.Customer) (t *models.Tenant, created bool, err error)
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error)
	GetCustomerByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*models.Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]*models.Customer, int, error)
	AllCustomers(ctx context.Context, tenantID uuid.UUID) ([]*models.Customer, error)
	UpdateCustomer(ctx context.Context, c *models.Customer) error
	DeleteCustomer(ctx context.Context, tenantID, id uuid.UUID) error

	// CreateInternalUser locks the tenant, counts its users and inserts u
	// with the role returned by assign for that count.
	CreateInternalUser(ctx context.Context, u *models.InternalUser, assign func(existing int) rbac.Role) error
	// CreateTenantWithUser creates the tenant, its default settings and its
	// first user in one transaction. ErrTenantExists when the slug is taken.
	CreateTenantWithUser(ctx context.Context, slug, name string, u *models.InternalUser, assign func(existing int) rbac.Role) (*models.Tenant, error)
	GetInternalUser(ctx context.Context, tenantID, id uuid.UUID) (*models.InternalUser, error)
	GetInternalUserByExternalID(ctx context.Context, externalID string) (*models.InternalUser, error)
	GetInternalUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.InternalUser, error)
	ListInternalUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.InternalUser, error)
	// LinkInternalUser attaches an identity-provider id to a pending invitation.
	LinkInternalUser(ctx context.Context, u *models.InternalUser) error
	UpdateInternalUserRole(ctx context.Context, tenantID, id uuid.UUID, role rbac.Role) (*models.InternalUser, error)
	// RemoveInternalUser revokes access but keeps the row for attribution.
	RemoveInternalUser(ctx context.Context, tenantID, id uuid.UUID) error
	// DeleteInternalUser hard-deletes a user; used to undo a failed invitation.
	DeleteInternalUser(ctx context.Context, tenantID, id uuid.UUID) error
}

// CustomerFilter selects a page of a tenant's customers. Search matches
// names and email case-insensitively, and phone digits as a substring.
type CustomerFilter struct {
	TenantID uuid.UUID
	Search   string
	Page     int
	Limit    int
}

// MaxPage bounds the page number so the row offset cannot overflow.
const MaxPage = 100000

// Normalize clamps pagination to sane values.
func (f *CustomerFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
}
