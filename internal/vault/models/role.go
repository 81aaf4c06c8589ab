package models

import (
	"fmt"

	dErrors "treasury/pkg/domain-errors"
)

// Role is a privilege level. Levels are totally ordered: Admin ⊇ Treasurer ⊇ Member.
type Role uint8

const (
	// RoleMember is read-only and the default for any identity never elevated.
	RoleMember Role = iota
	// RoleTreasurer may propose and approve transfers.
	RoleTreasurer
	// RoleAdmin may additionally manage roles, signers, config, and recurring payments.
	RoleAdmin
)

// AtLeast reports whether r grants every permission of min.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleTreasurer, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleTreasurer:
		return "treasurer"
	case RoleAdmin:
		return "admin"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole validates a role name from a trust boundary.
func ParseRole(s string) (Role, error) {
	switch s {
	case "member":
		return RoleMember, nil
	case "treasurer":
		return RoleTreasurer, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid role: must be 'member', 'treasurer', or 'admin'")
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
