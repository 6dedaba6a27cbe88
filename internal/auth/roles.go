package auth

import "strings"

// Role represents a user role.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleUser      Role = "user"
	RoleNGO       Role = "ngo"
	RoleAuthority Role = "authority"
	RoleAdmin     Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case RoleCitizen, RoleUser, RoleNGO, RoleAuthority, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleCitizen, RoleUser, RoleNGO:
		return 1
	case RoleAuthority:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
