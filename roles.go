package accounts

import "strings"

// UserRole is the role reported by the data API.
type UserRole = string

const (
	// RoleBuyer is a public sector buyer
	RoleBuyer UserRole = "buyer"
	// RoleSupplier is a supplier user, always affiliated with one supplier
	RoleSupplier UserRole = "supplier"
	// RoleAdmin is a support admin
	RoleAdmin UserRole = "admin"
	// RoleAdminManager manages admin users
	RoleAdminManager UserRole = "admin-manager"
	// RoleAdminFrameworkManager manages framework lifecycles
	RoleAdminFrameworkManager UserRole = "admin-framework-manager"
)

// IsAdminRole reports whether role is any of the admin variants.
func IsAdminRole(role UserRole) bool {
	return strings.HasPrefix(role, RoleAdmin)
}

// CanSelfResetPassword reports whether users with role may reset their own
// password by email. Manager roles must go through support.
func CanSelfResetPassword(role UserRole) bool {
	switch role {
	case RoleAdminManager, RoleAdminFrameworkManager:
		return false
	default:
		return true
	}
}

// LandingPath returns the page a user of role lands on after login.
func LandingPath(role UserRole) string {
	switch {
	case role == RoleSupplier:
		return "/suppliers"
	case IsAdminRole(role):
		return "/admin"
	default:
		return "/"
	}
}

// InvitationRole returns the role an invitation was issued for. Invitations
// minted before the role claim existed are inferred from the supplier claim.
func InvitationRole(claims map[string]any) UserRole {
	if role, ok := claims["role"].(string); ok && role != "" {
		return role
	}
	if _, ok := claims["supplier_id"]; ok {
		return RoleSupplier
	}
	return RoleBuyer
}
