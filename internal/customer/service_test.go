package customer_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/customer"
	"github.com/kiranshivaraju/memberbase/internal/store"
	"github.com/kiranshivaraju/memberbase/internal/tenant"
	"github.com/kiranshivaraju/memberbase/internal/validate"
	"github.com/kiranshivaraju/memberbase/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// --- Mock Store ---

type mockStore struct {
	mu           sync.Mutex
	tenants      map[string]*models.Tenant
	settings     map[uuid.UUID]*models.Settings
	customers    map[uuid.UUID]*models.Customer
	phoneLookups int
	// skipCheck makes GetCustomerByPhone miss, simulating a lost race.
	skipCheck bool
	listErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants:   map[string]*models.Tenant{},
		settings:  map[uuid.UUID]*models.Settings{},
		customers: map[uuid.UUID]*models.Customer{},
	}
}

func (m *mockStore) addTenant(slug, country string) *models.Tenant {
	t := &models.Tenant{ID: uuid.New(), Slug: slug, Name: tenant.DisplayName(slug)}
	m.tenants[slug] = t
	m.settings[t.ID] = &models.Settings{TenantID: t.ID, Country: country}
	return &models.Tenant{ID: t.ID, Slug: slug, Name: t.Name, Settings: m.settings[t.ID]}
}

func (m *mockStore) GetTenantBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[slug]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) GetSettings(_ context.Context, id uuid.UUID) (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[id]
	if !ok {
		s = &models.Settings{TenantID: id, Country: models.DefaultCountry}
		m.settings[id] = s
	}
	return s, nil
}

func (m *mockStore) taken(c *models.Customer) bool {
	for _, other := range m.customers {
		if other.TenantID == c.TenantID && other.Phone == c.Phone && other.ID != c.ID {
			return true
		}
	}
	return false
}

func (m *mockStore) RegisterCustomer(_ context.Context, slug, name string, c *models.Customer) (*models.Tenant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[slug]
	created := !ok
	if created {
		t = &models.Tenant{ID: uuid.New(), Slug: slug, Name: name}
	}
	c.TenantID = t.ID
	if m.taken(c) {
		return nil, false, store.ErrDuplicateKey
	}
	if created {
		m.tenants[slug] = t
		m.settings[t.ID] = &models.Settings{TenantID: t.ID, Country: models.DefaultCountry}
	}
	m.customers[c.ID] = c
	return t, created, nil
}

func (m *mockStore) CreateCustomer(_ context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken(c) {
		return store.ErrDuplicateKey
	}
	m.customers[c.ID] = c
	return nil
}

func (m *mockStore) GetCustomer(_ context.Context, tenantID, id uuid.UUID) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok || c.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) GetCustomerByPhone(_ context.Context, tenantID uuid.UUID, phone string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phoneLookups++
	if m.skipCheck {
		return nil, store.ErrNotFound
	}
	for _, c := range m.customers {
		if c.TenantID == tenantID && c.Phone == phone {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListCustomers(_ context.Context, f store.CustomerFilter) ([]*models.Customer, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	rows, _ := m.AllCustomers(context.Background(), f.TenantID)
	return rows, len(rows), nil
}

func (m *mockStore) AllCustomers(_ context.Context, tenantID uuid.UUID) ([]*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Customer
	for _, c := range m.customers {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out, nil
}

func (m *mockStore) UpdateCustomer(_ context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[c.ID]; !ok {
		return store.ErrNotFound
	}
	if m.taken(c) {
		return store.ErrDuplicateKey
	}
	m.customers[c.ID] = c
	return nil
}

func (m *mockStore) DeleteCustomer(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok || c.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(m.customers, id)
	return nil
}

// --- Helpers ---

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(m *mockStore) *customer.Service {
	return customer.NewService(m).WithClock(func() time.Time { return fixedNow })
}

func janeInput(phone string) validate.CustomerInput {
	return validate.CustomerInput{
		FirstName:    "Jane",
		LastName:     "Doe",
		Phone:        phone,
		BirthDate:    "1990-05-01",
		Email:        "jane@example.com",
		ConsentGiven: true,
	}
}

// --- CheckAvailability ---

func TestCheckAvailability_NonCanonicalSkipsLookup(t *testing.T) {
	m := newMockStore()
	svc := newService(m)

	for _, in := range []string{"5551234567", "(555) 123-4567", "+0123", ""} {
		avail, err := svc.CheckAvailability(context.Background(), in, uuid.New(), nil)
		require.NoError(t, err)
		assert.False(t, avail.Available)
		assert.NotEmpty(t, avail.Reason)
	}
	assert.Zero(t, m.phoneLookups)
}

func TestCheckAvailability_TakenNamesHolder(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")

	_, err := svc.Register(context.Background(), "acme", janeInput("(555) 123-4567"))
	require.NoError(t, err)

	avail, err := svc.CheckAvailability(context.Background(), "+15551234567", acme.ID, nil)
	require.NoError(t, err)
	assert.False(t, avail.Available)
	assert.Equal(t, "This phone number is already registered to Jane Doe", avail.Reason)

	avail, err = svc.CheckAvailability(context.Background(), "+15559999999", acme.ID, nil)
	require.NoError(t, err)
	assert.True(t, avail.Available)
}

func TestCheckAvailability_ExcludeSelf(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")

	reg, err := svc.Register(context.Background(), "acme", janeInput("(555) 123-4567"))
	require.NoError(t, err)

	avail, err := svc.CheckAvailability(context.Background(), "+15551234567", acme.ID, &reg.Customer.ID)
	require.NoError(t, err)
	assert.True(t, avail.Available)
}

// --- ValidatePhone ---

func TestValidatePhone_FormatFailureNeverTouchesStorage(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")

	check, err := svc.ValidatePhone(context.Background(), acme, "123", "US", nil)
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.Contains(t, check.Reason, "valid phone number")
	assert.Empty(t, check.Canonical)
	assert.Zero(t, m.phoneLookups)
}

func TestValidatePhone_UnprovisionedTenantIsAvailable(t *testing.T) {
	m := newMockStore()
	svc := newService(m)

	check, err := svc.ValidatePhone(context.Background(), nil, "(555) 123-4567", "US", nil)
	require.NoError(t, err)
	assert.True(t, check.Available)
	assert.Equal(t, "+15551234567", check.Canonical)
	assert.Equal(t, "US", check.Country)
	assert.Zero(t, m.phoneLookups)
}

func TestValidatePhone_Taken(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")
	_, err := svc.Register(context.Background(), "acme", janeInput("+15551234567"))
	require.NoError(t, err)

	check, err := svc.ValidatePhone(context.Background(), acme, "555.123.4567", "US", nil)
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.Contains(t, check.Reason, "Jane Doe")
	assert.Equal(t, "+15551234567", check.Canonical)
}

// --- Register ---

func TestRegister_CreatesTenantWithFirstCustomer(t *testing.T) {
	m := newMockStore()
	svc := newService(m)

	reg, err := svc.Register(context.Background(), "acme", janeInput("(555) 123-4567"))
	require.NoError(t, err)
	assert.True(t, reg.TenantCreated)
	assert.Equal(t, "acme", reg.Tenant.Slug)
	assert.Equal(t, "Acme", reg.Tenant.Name)
	assert.Equal(t, "+15551234567", reg.Customer.Phone)
	assert.True(t, reg.Customer.CreatedBy.IsSystem())
	assert.True(t, reg.Customer.ConsentGiven)
	assert.Equal(t, time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), reg.Customer.BirthDate)

	again, err := svc.Register(context.Background(), "acme", janeInput("(555) 765-4321"))
	require.NoError(t, err)
	assert.False(t, again.TenantCreated)
	assert.Equal(t, reg.Tenant.ID, again.Tenant.ID)
}

func TestRegister_DuplicatePhoneConflictNamesHolder(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	_, err := svc.Register(context.Background(), "acme", janeInput("(555) 123-4567"))
	require.NoError(t, err)

	other := janeInput("+1 555 123 4567")
	other.FirstName = "Janet"
	_, err = svc.Register(context.Background(), "acme", other)

	var conflict *customer.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "phone", conflict.Field)
	assert.Contains(t, conflict.Message, "Jane Doe")
}

func TestRegister_LostRaceMapsToConflict(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	_, err := svc.Register(context.Background(), "acme", janeInput("(555) 123-4567"))
	require.NoError(t, err)

	m.skipCheck = true
	_, err = svc.Register(context.Background(), "acme", janeInput("(555) 123-4567"))

	var conflict *customer.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Message, "already registered")
}

func TestRegister_SamePhoneDifferentTenant(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	_, err := svc.Register(context.Background(), "acme", janeInput("(555) 123-4567"))
	require.NoError(t, err)

	reg, err := svc.Register(context.Background(), "beta", janeInput("(555) 123-4567"))
	require.NoError(t, err)
	assert.True(t, reg.TenantCreated)
}

func TestRegister_RequiresConsent(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	in := janeInput("(555) 123-4567")
	in.ConsentGiven = false

	_, err := svc.Register(context.Background(), "acme", in)
	var verrs validate.Errors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "consent_given")
	assert.Empty(t, m.tenants, "no tenant is created for an invalid form")
}

func TestRegister_ReportsEveryViolation(t *testing.T) {
	m := newMockStore()
	svc := newService(m)

	_, err := svc.Register(context.Background(), "acme", validate.CustomerInput{
		FirstName: "J",
		Phone:     "123",
		BirthDate: "2026-06-01",
	})
	var verrs validate.Errors
	require.ErrorAs(t, err, &verrs)
	for _, f := range []string{"first_name", "last_name", "phone", "birth_date", "consent_given"} {
		assert.Contains(t, verrs, f)
	}
	assert.Zero(t, m.phoneLookups)
}

func TestRegister_UsesTenantCountry(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	m.addTenant("londoners", "United Kingdom")

	in := janeInput("01212 345678")
	in.PostalCode = "SW1A 1AA"
	reg, err := svc.Register(context.Background(), "londoners", in)
	require.NoError(t, err)
	assert.Equal(t, "+441212345678", reg.Customer.Phone)
}

func TestRegister_InvalidSlug(t *testing.T) {
	svc := newService(newMockStore())
	_, err := svc.Register(context.Background(), "api", janeInput("(555) 123-4567"))
	assert.ErrorIs(t, err, tenant.ErrInvalidSlug)
}

// --- Create / Update / Delete ---

func TestCreate_ConsentOptionalAndActorRecorded(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")
	userID := uuid.New()

	in := janeInput("(555) 123-4567")
	in.ConsentGiven = false
	c, err := svc.Create(context.Background(), acme, models.UserActor(userID), in)
	require.NoError(t, err)
	assert.False(t, c.ConsentGiven)
	got, ok := c.CreatedBy.UserID()
	assert.True(t, ok)
	assert.Equal(t, userID, got)

	_, err = svc.Create(context.Background(), acme, models.UserActor(userID), janeInput("5551234567"))
	var conflict *customer.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestUpdate(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")
	creator, editor := uuid.New(), uuid.New()

	jane, err := svc.Create(context.Background(), acme, models.UserActor(creator), janeInput("(555) 123-4567"))
	require.NoError(t, err)
	bob := janeInput("(555) 765-4321")
	bob.FirstName = "Bob"
	_, err = svc.Create(context.Background(), acme, models.UserActor(creator), bob)
	require.NoError(t, err)

	// Keeping the same phone is not a collision with itself.
	in := janeInput("555-123-4567")
	in.City = "Springfield"
	updated, err := svc.Update(context.Background(), acme, models.UserActor(editor), jane.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Springfield", updated.City)
	createdBy, _ := updated.CreatedBy.UserID()
	updatedBy, _ := updated.UpdatedBy.UserID()
	assert.Equal(t, creator, createdBy)
	assert.Equal(t, editor, updatedBy)

	// Taking Bob's number is.
	_, err = svc.Update(context.Background(), acme, models.UserActor(editor), jane.ID, janeInput("(555) 765-4321"))
	var conflict *customer.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Message, "Bob Doe")

	_, err = svc.Update(context.Background(), acme, models.UserActor(editor), uuid.New(), in)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdate_AfterTenantCountryChange(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")

	jane, err := svc.Create(context.Background(), acme, models.SystemActor(), janeInput("(555) 123-4567"))
	require.NoError(t, err)
	require.Equal(t, "+15551234567", jane.Phone)

	acme.Settings.Country = "United Kingdom"

	// The stored canonical number, as the dashboard sends it back.
	in := janeInput(jane.Phone)
	in.City = "London"
	updated, err := svc.Update(context.Background(), acme, models.SystemActor(), jane.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", updated.Phone)
	assert.Equal(t, "London", updated.City)

	// Its national rendering is not reinterpreted as a UK number.
	updated, err = svc.Update(context.Background(), acme, models.SystemActor(), jane.ID, janeInput("(555) 123-4567"))
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", updated.Phone)

	// A new number is formatted under the new country.
	updated, err = svc.Update(context.Background(), acme, models.SystemActor(), jane.ID, janeInput("01212 345678"))
	require.NoError(t, err)
	assert.Equal(t, "+441212345678", updated.Phone)
}

func TestDelete(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")
	c, err := svc.Create(context.Background(), acme, models.SystemActor(), janeInput("(555) 123-4567"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), acme.ID, c.ID))
	assert.ErrorIs(t, svc.Delete(context.Background(), acme.ID, c.ID), store.ErrNotFound)
}

func TestList_NormalizesPaging(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")

	page, err := svc.List(context.Background(), store.CustomerFilter{TenantID: acme.ID, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)

	page, err = svc.List(context.Background(), store.CustomerFilter{TenantID: acme.ID, Page: math.MaxInt})
	require.NoError(t, err)
	assert.Equal(t, store.MaxPage, page.Page)

	m.listErr = errors.New("db down")
	_, err = svc.List(context.Background(), store.CustomerFilter{TenantID: acme.ID})
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	m := newMockStore()
	svc := newService(m)
	acme := m.addTenant("acme", "United States")
	_, err := svc.Create(context.Background(), acme, models.SystemActor(), janeInput("(201) 555-0123"))
	require.NoError(t, err)

	data, err := svc.Export(context.Background(), acme.ID)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Customers")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "(201) 555-0123", rows[1][2])
}
