package auth

// Role represents an actor role for access control
type Role string

const (
	// RoleStudent may run generation operations subject to rate limits
	RoleStudent Role = "student"

	// RoleInstructor may run generation operations and read usage reports
	RoleInstructor Role = "instructor"

	// RoleService is a trusted internal caller that bypasses rate limits
	RoleService Role = "service"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleService:
		return true
	default:
		return false
	}
}

// Trusted reports whether the role skips rate limiting and quota.
// Only internal services qualify; upstream spend is still recorded.
func (r Role) Trusted() bool {
	return r == RoleService
}

// HasPermission checks if a role has permission for a required role.
// Service has all permissions, instructor covers student endpoints.
func (r Role) HasPermission(required Role) bool {
	if r == RoleService {
		return true
	}
	if r == RoleInstructor && required == RoleStudent {
		return true
	}
	return r == required
}
