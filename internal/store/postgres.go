package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/memberbase/internal/rbac"
	"github.com/kiranshivaraju/memberbase/pkg/models"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- Tenants ---

const tenantColumns = `id, slug, name, created_at, updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return t, nil
}

// ensureTenant inserts the tenant and its default settings unless the slug
// is already taken. A concurrent insert of the same slug blocks on the
// unique index until the other transaction finishes.
func ensureTenant(ctx context.Context, q querier, slug, name string) (*models.Tenant, bool, error) {
	now := time.Now().UTC()
	t, err := scanTenant(q.QueryRow(ctx,
		`INSERT INTO tenants (id, slug, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (slug) DO NOTHING
		 RETURNING `+tenantColumns,
		uuid.New(), slug, name, now))
	created := true
	if errors.Is(err, pgx.ErrNoRows) {
		created = false
		t, err = scanTenant(q.QueryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug))
	}
	if err != nil {
		return nil, false, fmt.Errorf("ensure tenant: %w", err)
	}

	if _, err := q.Exec(ctx,
		`INSERT INTO settings (tenant_id, country, created_at, updated_at)
		 VALUES ($1, $2, $3, $3) ON CONFLICT (tenant_id) DO NOTHING`,
		t.ID, models.DefaultCountry, now); err != nil {
		return nil, false, fmt.Errorf("ensure settings: %w", err)
	}
	return t, created, nil
}

// --- Settings ---

func (s *PostgresStore) GetSettings(ctx context.Context, tenantID uuid.UUID) (*models.Settings, error) {
	var st models.Settings
	err := s.pool.QueryRow(ctx,
		`WITH ins AS (
		   INSERT INTO settings (tenant_id, country) VALUES ($1, $2)
		   ON CONFLICT (tenant_id) DO NOTHING
		   RETURNING tenant_id, country, created_at, updated_at
		 )
		 SELECT tenant_id, country, created_at, updated_at FROM ins
		 UNION ALL
		 SELECT tenant_id, country, created_at, updated_at FROM settings WHERE tenant_id = $1
		 LIMIT 1`,
		tenantID, models.DefaultCountry,
	).Scan(&st.TenantID, &st.Country, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isForeignKeyError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) UpdateSettingsCountry(ctx context.Context, tenantID uuid.UUID, country string) (*models.Settings, error) {
	var st models.Settings
	err := s.pool.QueryRow(ctx,
		`INSERT INTO settings (tenant_id, country) VALUES ($1, $2)
		 ON CONFLICT (tenant_id) DO UPDATE SET country = EXCLUDED.country, updated_at = NOW()
		 RETURNING tenant_id, country, created_at, updated_at`,
		tenantID, country,
	).Scan(&st.TenantID, &st.Country, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return &st, nil
}

// --- Customers ---

const customerColumns = `id, tenant_id, first_name, last_name, phone, birth_date, email,
	address_line1, address_line2, city, state, postal_code, consent_given,
	created_by, updated_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var (
		c                    models.Customer
		createdBy, updatedBy *uuid.UUID
	)
	if err := row.Scan(&c.ID, &c.TenantID, &c.FirstName, &c.LastName, &c.Phone, &c.BirthDate, &c.Email,
		&c.AddressLine1, &c.AddressLine2, &c.City, &c.State, &c.PostalCode, &c.ConsentGiven,
		&createdBy, &updatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CreatedBy = models.ActorFromNullable(createdBy)
	c.UpdatedBy = models.ActorFromNullable(updatedBy)
	return &c, nil
}

func insertCustomer(ctx context.Context, q querier, c *models.Customer) error {
	_, err := q.Exec(ctx,
		`INSERT INTO customers (`+customerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		c.ID, c.TenantID, c.FirstName, c.LastName, c.Phone, c.BirthDate, c.Email,
		c.AddressLine1, c.AddressLine2, c.City, c.State, c.PostalCode, c.ConsentGiven,
		c.CreatedBy.Nullable(), c.UpdatedBy.Nullable(), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return duplicate(err)
		}
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

func (s *PostgresStore) RegisterCustomer(ctx context.Context, slug, name string, c *models.Customer) (*models.Tenant, bool, error) {
	var (
		t       *models.Tenant
		created bool
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		t, created, err = ensureTenant(ctx, tx, slug, name)
		if err != nil {
			return err
		}
		c.TenantID = t.ID
		return insertCustomer(ctx, tx, c)
	})
	if err != nil {
		return nil, false, err
	}
	return t, created, nil
}

func (s *PostgresStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	return insertCustomer(ctx, s.pool, c)
}

func (s *PostgresStore) GetCustomer(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error) {
	c, err := scanCustomer(s.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetCustomerByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*models.Customer, error) {
	c, err := scanCustomer(s.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND phone = $2`, tenantID, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer by phone: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCustomers(ctx context.Context, filter CustomerFilter) ([]*models.Customer, int, error) {
	filter.Normalize()

	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if q := strings.TrimSpace(filter.Search); q != "" {
		like := "%" + escapeLike(q) + "%"
		cond := fmt.Sprintf(
			"(first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d OR (first_name || ' ' || last_name) ILIKE $%[1]d OR email ILIKE $%[1]d",
			argIdx)
		args = append(args, like)
		argIdx++
		if digits := onlyDigits(q); digits != "" {
			cond += fmt.Sprintf(" OR phone LIKE $%d", argIdx)
			args = append(args, "%"+digits+"%")
			argIdx++
		}
		conditions = append(conditions, cond+")")
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM customers WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM customers WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		customerColumns, where, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	customers, err := s.queryCustomers(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	return customers, total, nil
}

func (s *PostgresStore) AllCustomers(ctx context.Context, tenantID uuid.UUID) ([]*models.Customer, error) {
	customers, err := s.queryCustomers(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 ORDER BY last_name, first_name, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("all customers: %w", err)
	}
	return customers, nil
}

func (s *PostgresStore) queryCustomers(ctx context.Context, sql string, args ...any) ([]*models.Customer, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []*models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *PostgresStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE customers SET first_name = $3, last_name = $4, phone = $5, birth_date = $6, email = $7,
		   address_line1 = $8, address_line2 = $9, city = $10, state = $11, postal_code = $12,
		   consent_given = $13, updated_by = $14, updated_at = $15
		 WHERE id = $1 AND tenant_id = $2`,
		c.ID, c.TenantID, c.FirstName, c.LastName, c.Phone, c.BirthDate, c.Email,
		c.AddressLine1, c.AddressLine2, c.City, c.State, c.PostalCode,
		c.ConsentGiven, c.UpdatedBy.Nullable(), c.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return duplicate(err)
		}
		return fmt.Errorf("update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteCustomer(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Internal users ---

const userColumns = `id, tenant_id, external_id, email, first_name, last_name, role, created_at, updated_at`

func scanUser(row pgx.Row) (*models.InternalUser, error) {
	var (
		u          models.InternalUser
		externalID *string
		role       string
	)
	if err := row.Scan(&u.ID, &u.TenantID, &externalID, &u.Email, &u.FirstName, &u.LastName,
		&role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if externalID != nil {
		u.ExternalID = *externalID
	}
	u.Role = rbac.Role(role)
	return &u, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PostgresStore) CreateInternalUser(ctx context.Context, u *models.InternalUser, assign func(existing int) rbac.Role) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return insertInternalUser(ctx, tx, u, assign)
	})
}

func (s *PostgresStore) CreateTenantWithUser(ctx context.Context, slug, name string, u *models.InternalUser, assign func(existing int) rbac.Role) (*models.Tenant, error) {
	var t *models.Tenant
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			created bool
			err     error
		)
		t, created, err = ensureTenant(ctx, tx, slug, name)
		if err != nil {
			return err
		}
		if !created {
			return ErrTenantExists
		}
		u.TenantID = t.ID
		return insertInternalUser(ctx, tx, u, assign)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// insertInternalUser locks the tenant row so concurrent inserts see a
// consistent count of active users.
func insertInternalUser(ctx context.Context, tx pgx.Tx, u *models.InternalUser, assign func(existing int) rbac.Role) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM tenants WHERE id = $1 FOR UPDATE`, u.TenantID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock tenant: %w", err)
	}

	var existing int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM internal_users WHERE tenant_id = $1 AND removed_at IS NULL`, u.TenantID).Scan(&existing); err != nil {
		return fmt.Errorf("count internal users: %w", err)
	}
	u.Role = assign(existing)

	_, err = tx.Exec(ctx,
		`INSERT INTO internal_users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.TenantID, nullableString(u.ExternalID), u.Email, u.FirstName, u.LastName,
		string(u.Role), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return duplicate(err)
		}
		return fmt.Errorf("create internal user: %w", err)
	}
	return nil
}

func (s *PostgresStore) getUser(ctx context.Context, what, where string, args ...any) (*models.InternalUser, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM internal_users WHERE removed_at IS NULL AND `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return u, nil
}

func (s *PostgresStore) GetInternalUser(ctx context.Context, tenantID, id uuid.UUID) (*models.InternalUser, error) {
	return s.getUser(ctx, "get internal user", `id = $1 AND tenant_id = $2`, id, tenantID)
}

func (s *PostgresStore) GetInternalUserByExternalID(ctx context.Context, externalID string) (*models.InternalUser, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	return s.getUser(ctx, "get internal user by external id", `external_id = $1`, externalID)
}

func (s *PostgresStore) GetInternalUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.InternalUser, error) {
	return s.getUser(ctx, "get internal user by email", `tenant_id = $1 AND lower(email) = lower($2)`, tenantID, email)
}

func (s *PostgresStore) ListInternalUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.InternalUser, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM internal_users WHERE tenant_id = $1 AND removed_at IS NULL ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list internal users: %w", err)
	}
	defer rows.Close()

	users := []*models.InternalUser{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan internal user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) LinkInternalUser(ctx context.Context, u *models.InternalUser) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE internal_users SET external_id = $3, first_name = $4, last_name = $5, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND external_id IS NULL AND removed_at IS NULL`,
		u.ID, u.TenantID, u.ExternalID, u.FirstName, u.LastName)
	if err != nil {
		if isDuplicateKeyError(err) {
			return duplicate(err)
		}
		return fmt.Errorf("link internal user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateInternalUserRole(ctx context.Context, tenantID, id uuid.UUID, role rbac.Role) (*models.InternalUser, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE internal_users SET role = $3, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND removed_at IS NULL
		 RETURNING `+userColumns, id, tenantID, string(role)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update internal user role: %w", err)
	}
	return u, nil
}

// RemoveInternalUser tombstones an active user. The row stays so records the
// user created or edited keep their attribution.
func (s *PostgresStore) RemoveInternalUser(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE internal_users SET removed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND removed_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("remove internal user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteInternalUser(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM internal_users WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete internal user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}

// duplicate wraps ErrDuplicateKey with the violated constraint name.
func duplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
	}
	return ErrDuplicateKey
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
