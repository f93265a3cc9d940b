package accounts

import (
	"maps"

	"github.com/gofiber/fiber/v2"
)

// TemplateHelpers returns the functions and constants every account view can
// use. With the django engine functions are called inline:
//
//	{% if is_authenticated(current_user) %}
//	{% if has_role(current_user, roles.supplier) %}
//	<a href="{{ landing_path(current_user) }}">
//
// CSRF helpers (csrf_field, csrf_token) are bound by the csrf middleware.
func TemplateHelpers() fiber.Map {
	return fiber.Map{
		"is_authenticated": isAuthenticated,
		"has_role":         hasRole,
		"is_admin":         isAdmin,
		"landing_path":     landingPathFor,
		"roles": map[string]string{
			"buyer":                   RoleBuyer,
			"supplier":                RoleSupplier,
			"admin":                   RoleAdmin,
			"admin_manager":           RoleAdminManager,
			"admin_framework_manager": RoleAdminFrameworkManager,
		},
	}
}

// TemplateHelpersWithUser is TemplateHelpers with current_user set.
func TemplateHelpersWithUser(user *SessionUser) fiber.Map {
	helpers := TemplateHelpers()
	if user != nil {
		helpers[TemplateUserKey] = user
	}
	return helpers
}

// BindTemplateHelpers binds the helpers, plus extra, into every view
// rendered after it.
func BindTemplateHelpers(extra fiber.Map) fiber.Handler {
	return func(c *fiber.Ctx) error {
		helpers := TemplateHelpers()
		maps.Copy(helpers, extra)
		if err := c.Bind(helpers); err != nil {
			return err
		}
		return c.Next()
	}
}

func asSessionUser(user any) *SessionUser {
	switch u := user.(type) {
	case *SessionUser:
		return u
	case SessionUser:
		return &u
	default:
		return nil
	}
}

func isAuthenticated(user any) bool {
	u := asSessionUser(user)
	return u != nil && u.ID != 0
}

func hasRole(user any, role string) bool {
	u := asSessionUser(user)
	return u != nil && u.Role == role
}

func isAdmin(user any) bool {
	u := asSessionUser(user)
	return u != nil && IsAdminRole(u.Role)
}

func landingPathFor(user any) string {
	u := asSessionUser(user)
	if u == nil {
		return "/"
	}
	return LandingPath(u.Role)
}
