// Package users manages a tenant's internal (dashboard) users: provisioning
// from identity-provider events, invitations, role changes and removal.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/identity"
	"github.com/kiranshivaraju/memberbase/internal/rbac"
	"github.com/kiranshivaraju/memberbase/internal/store"
	"github.com/kiranshivaraju/memberbase/internal/tenant"
	"github.com/kiranshivaraju/memberbase/internal/validate"
	"github.com/kiranshivaraju/memberbase/pkg/models"
	"github.com/rs/zerolog"
)

var (
	// ErrEmailTaken means another internal user of the tenant has the email.
	ErrEmailTaken = errors.New("email already belongs to a user of this tenant")
	// ErrNotMember means the caller has no internal user in the tenant.
	ErrNotMember = errors.New("not a member of this tenant")
	// ErrSelfModification blocks callers from demoting or removing themselves.
	ErrSelfModification = errors.New("you cannot change your own access")
	// ErrNoTenant means an identity event carried no tenant to join.
	ErrNoTenant = errors.New("event has no tenant hint")
	// ErrTenantClaimed means a self-signup named a tenant that already
	// exists. Joining an existing tenant takes an invitation.
	ErrTenantClaimed = errors.New("tenant already exists")
)

// Store is the persistence the users service needs.
type Store interface {
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	CreateTenantWithUser(ctx context.Context, slug, name string, u *models.InternalUser, assign func(existing int) rbac.Role) (*models.Tenant, error)
	CreateInternalUser(ctx context.Context, u *models.InternalUser, assign func(existing int) rbac.Role) error
	GetInternalUser(ctx context.Context, tenantID, id uuid.UUID) (*models.InternalUser, error)
	GetInternalUserByExternalID(ctx context.Context, externalID string) (*models.InternalUser, error)
	GetInternalUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.InternalUser, error)
	ListInternalUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.InternalUser, error)
	LinkInternalUser(ctx context.Context, u *models.InternalUser) error
	UpdateInternalUserRole(ctx context.Context, tenantID, id uuid.UUID, role rbac.Role) (*models.InternalUser, error)
	RemoveInternalUser(ctx context.Context, tenantID, id uuid.UUID) error
	DeleteInternalUser(ctx context.Context, tenantID, id uuid.UUID) error
}

type Service struct {
	store   Store
	inviter identity.Inviter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates the service. A nil inviter records invitations without
// sending them.
func NewService(s Store, inviter identity.Inviter, logger zerolog.Logger) *Service {
	return &Service{store: s, inviter: inviter, logger: logger, now: time.Now}
}

// Member returns the caller's internal user in tenantID.
func (s *Service) Member(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.InternalUser, error) {
	u, err := s.store.GetInternalUserByExternalID(ctx, externalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if u.TenantID != tenantID {
		return nil, ErrNotMember
	}
	return u, nil
}

// Provisioned reports what ProvisionFromIdentity did.
type Provisioned struct {
	User          *models.InternalUser
	Created       bool
	Linked        bool
	TenantCreated bool
}

// ProvisionFromIdentity creates the internal user for a newly signed-up
// identity. Replays are no-ops and an unseen tenant is created with the user
// as its admin. An existing tenant is joined only through a trusted hint: a
// pending invitation with the same email is linked, anyone else becomes a
// viewer. A client-supplied hint naming an existing tenant is refused.
func (s *Service) ProvisionFromIdentity(ctx context.Context, ev *identity.UserEvent) (*Provisioned, error) {
	existing, err := s.store.GetInternalUserByExternalID(ctx, ev.ExternalID)
	if err == nil {
		return &Provisioned{User: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	if ev.TenantHint == "" {
		return nil, ErrNoTenant
	}
	if !tenant.ValidSlug(ev.TenantHint) {
		return nil, tenant.ErrInvalidSlug
	}

	t, err := s.store.GetTenantBySlug(ctx, ev.TenantHint)
	switch {
	case err == nil:
		return s.join(ctx, t, ev)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}

	u := s.newUser(ev)
	t, err = s.store.CreateTenantWithUser(ctx, ev.TenantHint, tenant.DisplayName(ev.TenantHint), u, assignDefault)
	switch {
	case errors.Is(err, store.ErrTenantExists):
		// Lost a race with another signup for the same slug.
		t, err = s.store.GetTenantBySlug(ctx, ev.TenantHint)
		if err != nil {
			return nil, fmt.Errorf("lookup tenant: %w", err)
		}
		return s.join(ctx, t, ev)
	case errors.Is(err, store.ErrDuplicateKey):
		return s.replayWinner(ctx, ev)
	case err != nil:
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	s.logProvisioned(t, u)
	return &Provisioned{User: u, Created: true, TenantCreated: true}, nil
}

func (s *Service) join(ctx context.Context, t *models.Tenant, ev *identity.UserEvent) (*Provisioned, error) {
	if !ev.HintTrusted {
		return nil, ErrTenantClaimed
	}

	email := normalizeEmail(ev.Email)
	invited, err := s.store.GetInternalUserByEmail(ctx, t.ID, email)
	switch {
	case err == nil && invited.Pending():
		invited.ExternalID = ev.ExternalID
		invited.FirstName = ev.FirstName
		invited.LastName = ev.LastName
		if err := s.store.LinkInternalUser(ctx, invited); err != nil {
			return nil, fmt.Errorf("link invitation: %w", err)
		}
		return &Provisioned{User: invited, Linked: true}, nil
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup invitation: %w", err)
	}

	u := s.newUser(ev)
	u.TenantID = t.ID
	err = s.store.CreateInternalUser(ctx, u, assignDefault)
	if errors.Is(err, store.ErrDuplicateKey) {
		return s.replayWinner(ctx, ev)
	}
	if err != nil {
		return nil, fmt.Errorf("create internal user: %w", err)
	}

	s.logProvisioned(t, u)
	return &Provisioned{User: u, Created: true}, nil
}

// replayWinner resolves a unique violation: either a concurrent delivery of
// the same event won, or the email belongs to another user.
func (s *Service) replayWinner(ctx context.Context, ev *identity.UserEvent) (*Provisioned, error) {
	if winner, err := s.store.GetInternalUserByExternalID(ctx, ev.ExternalID); err == nil {
		return &Provisioned{User: winner}, nil
	}
	return nil, ErrEmailTaken
}

func (s *Service) newUser(ev *identity.UserEvent) *models.InternalUser {
	now := s.now().UTC()
	return &models.InternalUser{
		ID:         uuid.New(),
		ExternalID: ev.ExternalID,
		Email:      normalizeEmail(ev.Email),
		FirstName:  ev.FirstName,
		LastName:   ev.LastName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *Service) logProvisioned(t *models.Tenant, u *models.InternalUser) {
	s.logger.Info().
		Str("tenant", t.Slug).
		Str("user_id", u.ID.String()).
		Str("role", string(u.Role)).
		Msg("internal user provisioned")
}

func assignDefault(n int) rbac.Role { return rbac.AssignRole(n, "", "") }

// InviteInput is the body of an invitation request.
type InviteInput struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Role  string `json:"role"  validate:"required,oneof=admin manager viewer"`
}

// Invite records a pending user with the requested role and asks the
// identity provider to email an invitation. Only admins may invite.
func (s *Service) Invite(ctx context.Context, caller *models.InternalUser, t *models.Tenant, in InviteInput) (*models.InternalUser, error) {
	if err := rbac.Authorize(caller.Role, rbac.CapManageUsers); err != nil {
		return nil, err
	}
	in.Email = normalizeEmail(in.Email)
	if err := validate.Struct(in).Err(); err != nil {
		return nil, err
	}
	requested := rbac.Role(in.Role)

	if _, err := s.store.GetInternalUserByEmail(ctx, t.ID, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	now := s.now().UTC()
	u := &models.InternalUser{
		ID:        uuid.New(),
		TenantID:  t.ID,
		Email:     in.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.CreateInternalUser(ctx, u, func(n int) rbac.Role {
		return rbac.AssignRole(n, requested, caller.Role)
	})
	if errors.Is(err, store.ErrDuplicateKey) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	if s.inviter == nil {
		return u, nil
	}
	if _, err := s.inviter.Invite(ctx, identity.Invitation{Email: u.Email, TenantSlug: t.Slug, Role: string(u.Role)}); err != nil {
		if derr := s.store.DeleteInternalUser(ctx, t.ID, u.ID); derr != nil {
			s.logger.Error().Err(derr).Str("user_id", u.ID.String()).Msg("failed to roll back invitation")
		}
		return nil, fmt.Errorf("send invitation: %w", err)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]*models.InternalUser, error) {
	return s.store.ListInternalUsers(ctx, tenantID)
}

// ChangeRole sets the role of another user of the caller's tenant.
func (s *Service) ChangeRole(ctx context.Context, caller *models.InternalUser, id uuid.UUID, role string) (*models.InternalUser, error) {
	if err := rbac.Authorize(caller.Role, rbac.CapManageUsers); err != nil {
		return nil, err
	}
	r, err := rbac.ParseRole(role)
	if err != nil {
		return nil, validate.Single("role", "Role must be one of admin, manager, viewer")
	}
	if id == caller.ID {
		return nil, ErrSelfModification
	}
	return s.store.UpdateInternalUserRole(ctx, caller.TenantID, id, r)
}

// Remove revokes another user's dashboard access. The user is tombstoned, so
// records they created stay attributed to them.
func (s *Service) Remove(ctx context.Context, caller *models.InternalUser, id uuid.UUID) error {
	if err := rbac.Authorize(caller.Role, rbac.CapManageUsers); err != nil {
		return err
	}
	if id == caller.ID {
		return ErrSelfModification
	}
	return s.store.RemoveInternalUser(ctx, caller.TenantID, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
