package csrf

import "github.com/gofiber/fiber/v2"

// RouteConfig configures the token endpoint used by pages that post with
// JavaScript and cannot read the hidden form field.
type RouteConfig struct {
	Path       string
	ContextKey string
	Name       string
}

// RegisterRoutes mounts GET <Path> (default /csrf) on app. The CSRF
// middleware must run first, on the same router or a parent.
func RegisterRoutes(app fiber.Router, cfg ...RouteConfig) {
	conf := RouteConfig{Path: "/csrf", ContextKey: DefaultContextKey, Name: "csrf.get"}
	if len(cfg) > 0 {
		if cfg[0].Path != "" {
			conf.Path = cfg[0].Path
		}
		if cfg[0].ContextKey != "" {
			conf.ContextKey = cfg[0].ContextKey
		}
		if cfg[0].Name != "" {
			conf.Name = cfg[0].Name
		}
	}
	app.Get(conf.Path, tokenHandler(conf.ContextKey)).Name(conf.Name)
}

func tokenHandler(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, _ := c.Locals(key).(string)
		if token == "" {
			return c.Status(ErrTokenMissing.Code).JSON(fiber.Map{
				"error": ErrTokenMissing.TextCode,
			})
		}

		c.Set(fiber.HeaderCacheControl, "no-store")

		return c.JSON(fiber.Map{
			"token":       token,
			"field_name":  localOr(c, key+"_field", DefaultFormFieldName),
			"header_name": localOr(c, key+"_header", DefaultHeaderName),
		})
	}
}

func localOr(c *fiber.Ctx, key, fallback string) string {
	if v, ok := c.Locals(key).(string); ok && v != "" {
		return v
	}
	return fallback
}
