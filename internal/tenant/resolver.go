// Package tenant maps URL paths to tenants and manages per-tenant settings.
package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/country"
	"github.com/kiranshivaraju/memberbase/internal/validate"
	"github.com/kiranshivaraju/memberbase/pkg/models"
)

// Store is the subset of persistence the resolver needs.
type Store interface {
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetSettings(ctx context.Context, tenantID uuid.UUID) (*models.Settings, error)
	UpdateSettingsCountry(ctx context.Context, tenantID uuid.UUID, country string) (*models.Settings, error)
}

type Resolver struct {
	store Store
}

func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve looks up the tenant for slug with its settings attached. A missing
// tenant is reported as the store's not-found error; callers decide whether
// that is fatal.
func (r *Resolver) Resolve(ctx context.Context, slug string) (*models.Tenant, error) {
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}
	t, err := r.store.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	settings, err := r.store.GetSettings(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("load settings for %s: %w", slug, err)
	}
	t.Settings = settings
	return t, nil
}

// Settings returns the tenant's settings, creating the default row on first read.
func (r *Resolver) Settings(ctx context.Context, tenantID uuid.UUID) (*models.Settings, error) {
	return r.store.GetSettings(ctx, tenantID)
}

// UpdateCountry changes the tenant's country. The name must be a registry
// entry; it is stored in the registry's spelling.
func (r *Resolver) UpdateCountry(ctx context.Context, tenantID uuid.UUID, name string) (*models.Settings, error) {
	c, ok := country.ByName(name)
	if !ok {
		return nil, validate.Single("country", "Please select a valid country")
	}
	return r.store.UpdateSettingsCountry(ctx, tenantID, c.Name)
}

// CountryOf returns the registry entry for the tenant's configured country,
// falling back to the default for missing or stale settings.
func CountryOf(t *models.Tenant) country.Country {
	if t == nil || t.Settings == nil {
		return country.Default()
	}
	if c, ok := country.ByName(t.Settings.Country); ok {
		return c
	}
	return country.Default()
}
