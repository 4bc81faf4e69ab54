package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/memberbase/pkg/models"
)

// EnsureTenant creates a tenant without users for integration tests.
func (s *PostgresStore) EnsureTenant(ctx context.Context, slug, name string) (*models.Tenant, bool, error) {
	var (
		t       *models.Tenant
		created bool
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		t, created, err = ensureTenant(ctx, tx, slug, name)
		return err
	})
	return t, created, err
}
