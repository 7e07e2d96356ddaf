package identity

import "strings"

// Role is a tenant-level role. Staff and admins see the agency side of the
// board; client-role users see exactly one customer's side.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
)

// ParseRole normalizes a raw role string. Unknown roles are invalid rather
// than defaulting to staff: admission must never widen visibility by accident.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleStaff:
		return RoleStaff, true
	case RoleClient:
		return RoleClient, true
	default:
		return "", false
	}
}

// IsStaff reports whether the role belongs to the agency-side audience.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleStaff
}

// Identity is the resolved output of a successful handshake.
type Identity struct {
	TenantID   string
	UserID     string
	Role       Role
	CustomerID string // set only for client-role users
}

// Validate performs structural validation on a resolved identity.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.TenantID) == "" || strings.TrimSpace(id.UserID) == "" {
		return ErrInvalidInput
	}
	if _, ok := ParseRole(string(id.Role)); !ok {
		return ErrInvalidInput
	}
	if id.Role == RoleClient && strings.TrimSpace(id.CustomerID) == "" {
		return ErrInvalidInput
	}
	return nil
}
