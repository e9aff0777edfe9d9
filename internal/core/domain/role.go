package domain

import (
	"fmt"
	"strings"
)

// Role is one of the fixed operational personas. It has two string forms:
// the wire form used by the HTTP API (lower_snake_case) and the session form
// used by clients (UPPER_SNAKE_CASE).
type Role uint8

const (
	RoleUnknown Role = iota
	RoleManager
	RoleDispatcher
	RoleSafetyOfficer
	RoleFinancialAnalyst
)

// DefaultRole is assigned when signup omits the role.
const DefaultRole = RoleDispatcher

var roleNames = map[Role]struct{ wire, display string }{
	RoleManager:          {"manager", "Fleet Manager"},
	RoleDispatcher:       {"dispatcher", "Dispatcher"},
	RoleSafetyOfficer:    {"safety_officer", "Safety Officer"},
	RoleFinancialAnalyst: {"financial_analyst", "Financial Analyst"},
}

// Roles lists every valid role in declaration order.
func Roles() []Role {
	return []Role{RoleManager, RoleDispatcher, RoleSafetyOfficer, RoleFinancialAnalyst}
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Wire returns the lower_snake_case form, or "" for an invalid role.
func (r Role) Wire() string {
	return roleNames[r].wire
}

// Session returns the UPPER_SNAKE_CASE form, or "" for an invalid role.
func (r Role) Session() string {
	return strings.ToUpper(roleNames[r].wire)
}

// DisplayName returns the human label shown on dashboards.
func (r Role) DisplayName() string {
	return roleNames[r].display
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return r.Wire()
}

// ParseWireRole decodes a lower_snake_case role. Matching is exact.
func ParseWireRole(s string) (Role, error) {
	for _, r := range Roles() {
		if r.Wire() == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// ParseSessionRole decodes an UPPER_SNAKE_CASE role. Matching is exact.
func ParseSessionRole(s string) (Role, error) {
	for _, r := range Roles() {
		if r.Session() == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// MarshalText encodes the role in wire form.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
	return []byte(r.Wire()), nil
}

// UnmarshalText decodes a wire-form role.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseWireRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
