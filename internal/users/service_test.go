package users_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/identity"
	"github.com/kiranshivaraju/memberbase/internal/rbac"
	"github.com/kiranshivaraju/memberbase/internal/store"
	"github.com/kiranshivaraju/memberbase/internal/users"
	"github.com/kiranshivaraju/memberbase/internal/validate"
	"github.com/kiranshivaraju/memberbase/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Store ---

type mockStore struct {
	mu      sync.Mutex
	tenants map[string]*models.Tenant
	users   map[uuid.UUID]*models.InternalUser
	removed map[uuid.UUID]*models.InternalUser
	// createErr fails the user insert of CreateTenantWithUser.
	createErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants: map[string]*models.Tenant{},
		users:   map[uuid.UUID]*models.InternalUser{},
		removed: map[uuid.UUID]*models.InternalUser{},
	}
}

func (m *mockStore) GetTenantBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[slug]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) CreateTenantWithUser(_ context.Context, slug, name string, u *models.InternalUser, assign func(int) rbac.Role) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[slug]; ok {
		return nil, store.ErrTenantExists
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	t := &models.Tenant{ID: uuid.New(), Slug: slug, Name: name}
	u.TenantID = t.ID
	if err := m.insertLocked(u, assign); err != nil {
		return nil, err
	}
	m.tenants[slug] = t
	return t, nil
}

func (m *mockStore) CreateInternalUser(_ context.Context, u *models.InternalUser, assign func(int) rbac.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(u, assign)
}

func (m *mockStore) insertLocked(u *models.InternalUser, assign func(int) rbac.Role) error {
	n := 0
	for _, other := range m.users {
		if other.TenantID != u.TenantID {
			continue
		}
		if other.Email == u.Email {
			return store.ErrDuplicateKey
		}
		n++
	}
	u.Role = assign(n)
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockStore) GetInternalUser(_ context.Context, tenantID, id uuid.UUID) (*models.InternalUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok && u.TenantID == tenantID {
		cp := *u
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) GetInternalUserByExternalID(_ context.Context, externalID string) (*models.InternalUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ExternalID != "" && u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) GetInternalUserByEmail(_ context.Context, tenantID uuid.UUID, email string) (*models.InternalUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListInternalUsers(_ context.Context, tenantID uuid.UUID) ([]*models.InternalUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.InternalUser{}
	for _, u := range m.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockStore) LinkInternalUser(_ context.Context, u *models.InternalUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok || existing.ExternalID != "" {
		return store.ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockStore) UpdateInternalUserRole(_ context.Context, tenantID, id uuid.UUID, role rbac.Role) (*models.InternalUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

func (m *mockStore) RemoveInternalUser(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.TenantID != tenantID {
		return store.ErrNotFound
	}
	m.removed[id] = u
	delete(m.users, id)
	return nil
}

func (m *mockStore) DeleteInternalUser(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// --- Mock Inviter ---

type mockInviter struct {
	sent []identity.Invitation
	err  error
}

func (m *mockInviter) Invite(_ context.Context, inv identity.Invitation) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, inv)
	return "inv_123", nil
}

// --- Helpers ---

func newService(m *mockStore, inv identity.Inviter) *users.Service {
	return users.NewService(m, inv, zerolog.New(io.Discard))
}

// signup is a self-signup whose tenant came from client-writable metadata.
func signup(id, email, slug string) *identity.UserEvent {
	return &identity.UserEvent{
		Type:       identity.EventUserCreated,
		ExternalID: id,
		Email:      email,
		FirstName:  "Ada",
		LastName:   "Lovelace",
		TenantHint: slug,
	}
}

// invited is a signup whose tenant was set server-side by an invitation.
func invited(id, email, slug string) *identity.UserEvent {
	ev := signup(id, email, slug)
	ev.HintTrusted = true
	return ev
}

func provisionAdmin(t *testing.T, svc *users.Service) *models.InternalUser {
	t.Helper()
	p, err := svc.ProvisionFromIdentity(context.Background(), signup("user_admin", "admin@acme.test", "acme"))
	require.NoError(t, err)
	return p.User
}

// --- ProvisionFromIdentity ---

func TestProvision_FirstUserIsAdminSecondIsViewer(t *testing.T) {
	m := newMockStore()
	svc := newService(m, nil)

	first, err := svc.ProvisionFromIdentity(context.Background(), signup("user_1", "Ada@Acme.test", "acme"))
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.TenantCreated)
	assert.Equal(t, rbac.RoleAdmin, first.User.Role)
	assert.Equal(t, "ada@acme.test", first.User.Email)

	second, err := svc.ProvisionFromIdentity(context.Background(), invited("user_2", "bob@acme.test", "acme"))
	require.NoError(t, err)
	assert.False(t, second.TenantCreated)
	assert.Equal(t, rbac.RoleViewer, second.User.Role)
}

func TestProvision_ReplayIsNoop(t *testing.T) {
	m := newMockStore()
	svc := newService(m, nil)

	first, err := svc.ProvisionFromIdentity(context.Background(), signup("user_1", "ada@acme.test", "acme"))
	require.NoError(t, err)
	again, err := svc.ProvisionFromIdentity(context.Background(), signup("user_1", "ada@acme.test", "acme"))
	require.NoError(t, err)

	assert.False(t, again.Created)
	assert.Equal(t, first.User.ID, again.User.ID)
	assert.Len(t, m.users, 1)
}

func TestProvision_LinksPendingInvitation(t *testing.T) {
	m := newMockStore()
	inv := &mockInviter{}
	svc := newService(m, inv)
	admin := provisionAdmin(t, svc)

	pending, err := svc.Invite(context.Background(), admin, m.tenants["acme"], users.InviteInput{Email: "mgr@acme.test", Role: "manager"})
	require.NoError(t, err)
	assert.True(t, pending.Pending())

	p, err := svc.ProvisionFromIdentity(context.Background(), invited("user_mgr", "MGR@acme.test", "acme"))
	require.NoError(t, err)
	assert.True(t, p.Linked)
	assert.Equal(t, pending.ID, p.User.ID)
	assert.Equal(t, rbac.RoleManager, p.User.Role)
	assert.Equal(t, "user_mgr", p.User.ExternalID)
}

func TestProvision_SelfSignupCannotJoinExistingTenant(t *testing.T) {
	m := newMockStore()
	svc := newService(m, nil)
	provisionAdmin(t, svc)

	_, err := svc.ProvisionFromIdentity(context.Background(), signup("user_stranger", "eve@evil.test", "acme"))
	assert.ErrorIs(t, err, users.ErrTenantClaimed)
	assert.Len(t, m.users, 1)

	// The same person invited through the provider gets in.
	p, err := svc.ProvisionFromIdentity(context.Background(), invited("user_stranger", "eve@evil.test", "acme"))
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleViewer, p.User.Role)
}

func TestProvision_TrustedHintCreatesMissingTenant(t *testing.T) {
	m := newMockStore()
	svc := newService(m, nil)

	p, err := svc.ProvisionFromIdentity(context.Background(), invited("user_1", "ada@beta.test", "beta"))
	require.NoError(t, err)
	assert.True(t, p.TenantCreated)
	assert.Equal(t, rbac.RoleAdmin, p.User.Role)
}

func TestProvision_FailedCreateLeavesNoTenant(t *testing.T) {
	m := newMockStore()
	m.createErr = errors.New("connection reset")
	svc := newService(m, nil)

	_, err := svc.ProvisionFromIdentity(context.Background(), signup("user_1", "ada@acme.test", "acme"))
	assert.Error(t, err)
	assert.Empty(t, m.tenants)
	assert.Empty(t, m.users)
}

func TestProvision_Errors(t *testing.T) {
	svc := newService(newMockStore(), nil)

	_, err := svc.ProvisionFromIdentity(context.Background(), signup("user_1", "a@b.test", ""))
	assert.ErrorIs(t, err, users.ErrNoTenant)

	_, err = svc.ProvisionFromIdentity(context.Background(), signup("user_1", "a@b.test", "Not A Slug"))
	assert.Error(t, err)
}

// --- Member ---

func TestMember(t *testing.T) {
	m := newMockStore()
	svc := newService(m, nil)
	admin := provisionAdmin(t, svc)

	got, err := svc.Member(context.Background(), admin.TenantID, "user_admin")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)

	_, err = svc.Member(context.Background(), uuid.New(), "user_admin")
	assert.ErrorIs(t, err, users.ErrNotMember)

	_, err = svc.Member(context.Background(), admin.TenantID, "user_unknown")
	assert.ErrorIs(t, err, users.ErrNotMember)
}

// --- Invite ---

func TestInvite(t *testing.T) {
	m := newMockStore()
	inv := &mockInviter{}
	svc := newService(m, inv)
	admin := provisionAdmin(t, svc)
	acme := m.tenants["acme"]

	u, err := svc.Invite(context.Background(), admin, acme, users.InviteInput{Email: " New@Acme.test ", Role: "viewer"})
	require.NoError(t, err)
	assert.Equal(t, "new@acme.test", u.Email)
	assert.Equal(t, rbac.RoleViewer, u.Role)
	require.Len(t, inv.sent, 1)
	assert.Equal(t, identity.Invitation{Email: "new@acme.test", TenantSlug: "acme", Role: "viewer"}, inv.sent[0])

	_, err = svc.Invite(context.Background(), admin, acme, users.InviteInput{Email: "new@acme.test", Role: "viewer"})
	assert.ErrorIs(t, err, users.ErrEmailTaken)
}

func TestInvite_RequiresAdmin(t *testing.T) {
	m := newMockStore()
	svc := newService(m, &mockInviter{})
	provisionAdmin(t, svc)
	viewer, err := svc.ProvisionFromIdentity(context.Background(), invited("user_v", "v@acme.test", "acme"))
	require.NoError(t, err)

	_, err = svc.Invite(context.Background(), viewer.User, m.tenants["acme"], users.InviteInput{Email: "x@acme.test", Role: "admin"})
	assert.ErrorIs(t, err, rbac.ErrForbidden)
}

func TestInvite_ValidatesInput(t *testing.T) {
	m := newMockStore()
	svc := newService(m, nil)
	admin := provisionAdmin(t, svc)

	_, err := svc.Invite(context.Background(), admin, m.tenants["acme"], users.InviteInput{Email: "nope", Role: "owner"})
	var verrs validate.Errors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "email")
	assert.Contains(t, verrs, "role")
}

func TestInvite_ProviderFailureRollsBack(t *testing.T) {
	m := newMockStore()
	svc := newService(m, &mockInviter{err: identity.ErrIdentityUnavailable})
	admin := provisionAdmin(t, svc)

	_, err := svc.Invite(context.Background(), admin, m.tenants["acme"], users.InviteInput{Email: "x@acme.test", Role: "manager"})
	assert.ErrorIs(t, err, identity.ErrIdentityUnavailable)
	assert.Len(t, m.users, 1)
}

// --- ChangeRole / Remove ---

func TestChangeRole(t *testing.T) {
	m := newMockStore()
	svc := newService(m, nil)
	admin := provisionAdmin(t, svc)
	p, err := svc.ProvisionFromIdentity(context.Background(), invited("user_v", "v@acme.test", "acme"))
	require.NoError(t, err)

	u, err := svc.ChangeRole(context.Background(), admin, p.User.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleManager, u.Role)

	_, err = svc.ChangeRole(context.Background(), admin, admin.ID, "viewer")
	assert.ErrorIs(t, err, users.ErrSelfModification)

	_, err = svc.ChangeRole(context.Background(), admin, p.User.ID, "owner")
	var verrs validate.Errors
	assert.ErrorAs(t, err, &verrs)

	_, err = svc.ChangeRole(context.Background(), u, admin.ID, "viewer")
	assert.ErrorIs(t, err, rbac.ErrForbidden)
}

func TestRemove(t *testing.T) {
	m := newMockStore()
	svc := newService(m, nil)
	admin := provisionAdmin(t, svc)
	p, err := svc.ProvisionFromIdentity(context.Background(), invited("user_v", "v@acme.test", "acme"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Remove(context.Background(), p.User, admin.ID), rbac.ErrForbidden)
	assert.ErrorIs(t, svc.Remove(context.Background(), admin, admin.ID), users.ErrSelfModification)
	require.NoError(t, svc.Remove(context.Background(), admin, p.User.ID))
	assert.True(t, errors.Is(svc.Remove(context.Background(), admin, p.User.ID), store.ErrNotFound))

	list, err := svc.List(context.Background(), admin.TenantID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Contains(t, m.removed, p.User.ID, "removed users are tombstoned")
}
