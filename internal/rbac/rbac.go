// Package rbac maps internal-user roles to the capabilities they hold.
package rbac

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned for every denied check. The message is deliberately
// the same regardless of which role would have been allowed.
var ErrForbidden = errors.New("insufficient permission")

// ErrUnknownRole is returned by ParseRole for values outside the enum.
var ErrUnknownRole = errors.New("unknown role")

// Role is one of the three dashboard roles, ordered admin > manager > viewer.
type Role string

const (
	RoleAdmin   Role = "admin"   // full access
	RoleManager Role = "manager" // customer manager
	RoleViewer  Role = "viewer"  // read only
)

// Capability is a single permitted action.
type Capability string

const (
	CapManageUsers    Capability = "manage_users"
	CapManageSettings Capability = "manage_settings"
	CapCreateCustomer Capability = "create_customer"
	CapEditCustomer   Capability = "edit_customer"
	CapDeleteCustomer Capability = "delete_customer"
	CapViewCustomer   Capability = "view_customer"
)

var rank = map[Role]int{
	RoleViewer:  1,
	RoleManager: 2,
	RoleAdmin:   3,
}

var customerCaps = []Capability{CapCreateCustomer, CapEditCustomer, CapDeleteCustomer, CapViewCustomer}

var capabilities = map[Role]map[Capability]bool{
	RoleAdmin:   set(append([]Capability{CapManageUsers, CapManageSettings}, customerCaps...)...),
	RoleManager: set(customerCaps...),
	RoleViewer:  set(CapViewCustomer),
}

func set(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := rank[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// Rank returns the position of r in the total order; unknown roles rank 0.
func (r Role) Rank() int { return rank[r] }

// Can reports whether r holds the capability.
func (r Role) Can(c Capability) bool { return capabilities[r][c] }

// Capabilities lists the capabilities of r in a stable order.
func (r Role) Capabilities() []Capability {
	all := []Capability{CapManageUsers, CapManageSettings, CapCreateCustomer, CapEditCustomer, CapDeleteCustomer, CapViewCustomer}
	out := make([]Capability, 0, len(all))
	for _, c := range all {
		if r.Can(c) {
			out = append(out, c)
		}
	}
	return out
}

// Authorize returns ErrForbidden unless role holds the capability.
func Authorize(role Role, c Capability) error {
	if !role.Can(c) {
		return ErrForbidden
	}
	return nil
}

// AtLeast returns ErrForbidden unless role ranks at or above min.
func AtLeast(role Role, min Role) error {
	if role.Rank() == 0 || role.Rank() < min.Rank() {
		return ErrForbidden
	}
	return nil
}

// AssignRole decides the role of a user about to be created in a tenant that
// currently has existingUsers internal users. The first user is always admin.
// Later users are viewers unless an admin caller explicitly asked for a role.
func AssignRole(existingUsers int, requested Role, caller Role) Role {
	if existingUsers == 0 {
		return RoleAdmin
	}
	if caller == RoleAdmin && requested.Valid() {
		return requested
	}
	return RoleViewer
}
