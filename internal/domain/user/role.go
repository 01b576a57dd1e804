package user

import (
	"errors"
	"strings"
)

// Role is the closed set of actor roles.
type Role string

const (
	RoleClient    Role = "CLIENT"
	RoleDriver    Role = "DRIVER"
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleClient, RoleDriver, RoleAdmin, RoleModerator:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

// SelfAssignable reports whether a user may pick this role on their own profile.
// Operator roles only come from role grants.
func (role Role) SelfAssignable() bool {
	return role == RoleClient || role == RoleDriver
}

// Convenience helpers.
func (role Role) IsClient() bool   { return role == RoleClient }
func (role Role) IsDriver() bool   { return role == RoleDriver }
func (role Role) IsAdmin() bool    { return role == RoleAdmin }
func (role Role) IsOperator() bool { return role == RoleAdmin || role == RoleModerator }
