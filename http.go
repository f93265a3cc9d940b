package accounts

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// TemplateUserKey is the locals and view key holding the logged in user.
var TemplateUserKey = "current_user"

// RouteAuthenticator logs users in against the account API and guards
// routes that need a session.
type RouteAuthenticator struct {
	sessions  *SessionManager
	api       AccountAPI
	Logger    Logger
	Activity  ActivitySink
	LoginPath string
	// SessionKeyLocal receives the session id so other middleware can bind to it.
	SessionKeyLocal string
}

// NewRouteAuthenticator creates an authenticator. loginPath is where
// anonymous users are sent by ProtectedRoute.
func NewRouteAuthenticator(sessions *SessionManager, api AccountAPI, loginPath string) (*RouteAuthenticator, error) {
	if sessions == nil {
		return nil, goerrors.New("session manager is required", goerrors.CategoryBadInput)
	}
	if api == nil {
		return nil, goerrors.New("account api is required", goerrors.CategoryBadInput)
	}
	return &RouteAuthenticator{
		sessions:        sessions,
		api:             api,
		Logger:          defLogger{},
		Activity:        noopActivitySink{},
		LoginPath:       loginPath,
		SessionKeyLocal: "session_id",
	}, nil
}

// Sessions exposes the session manager used for flashes.
func (a *RouteAuthenticator) Sessions() *SessionManager {
	return a.sessions
}

// Authenticate checks credentials with the account API without touching
// the session. Unknown, locked or inactive accounts all yield
// ErrInvalidCredentials.
func (a *RouteAuthenticator) Authenticate(ctx context.Context, payload LoginRequest) (*SessionUser, error) {
	account, err := a.api.AuthenticateUser(ctx, payload.EmailAddress, payload.Password)
	if err != nil {
		return nil, dependencyError(err, "failed to authenticate user")
	}

	hash := EmailHash(payload.EmailAddress)
	if account == nil {
		a.Logger.Info("login.fail: failed to log in", "code", "login.fail", "email_hash", hash)
		recordActivity(ctx, a.Activity, a.Logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			EmailHash: hash,
		})
		return nil, ErrInvalidCredentials
	}

	user := NewSessionUser(account)
	a.Logger.Info("login.success: logged in",
		"code", "login.success", "user_id", user.ID, "role", user.Role, "email_hash", hash)
	recordActivity(ctx, a.Activity, a.Logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID,
		EmailHash: hash,
	})
	return user, nil
}

// Login authenticates payload and stores the user in a fresh session.
func (a *RouteAuthenticator) Login(c *fiber.Ctx, payload LoginRequest) (*SessionUser, error) {
	user, err := a.Authenticate(c.UserContext(), payload)
	if err != nil {
		return nil, err
	}
	if err := a.sessions.Login(c, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout clears the session.
func (a *RouteAuthenticator) Logout(c *fiber.Ctx) error {
	if user := CurrentUser(c); user != nil {
		recordActivity(c.UserContext(), a.Activity, a.Logger, ActivityEvent{
			EventType: ActivityEventLogout,
			UserID:    user.ID,
			EmailHash: EmailHash(user.EmailAddress),
		})
	}
	return a.sessions.Logout(c)
}

// LoadSession puts the logged in user, if any, in locals and view bindings.
func (a *RouteAuthenticator) LoadSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := a.sessions.get(c)
		if err != nil {
			return err
		}
		if !sess.Fresh() && a.SessionKeyLocal != "" {
			c.Locals(a.SessionKeyLocal, sess.ID())
		}
		if user, err := sessionUser(sess); err == nil {
			c.Locals(TemplateUserKey, user)
			c.SetUserContext(WithContext(c.UserContext(), user))
			if err := c.Bind(fiber.Map{TemplateUserKey: user}); err != nil {
				return err
			}
		}
		return c.Next()
	}
}

// ProtectedRoute redirects anonymous requests to the login page with the
// original URL in next.
func (a *RouteAuthenticator) ProtectedRoute() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentUser(c) != nil {
			return c.Next()
		}

		a.Logger.Debug("anonymous request to protected route", "path", c.OriginalURL())

		status := fiber.StatusSeeOther
		if c.Method() == fiber.MethodGet {
			status = fiber.StatusFound
		}
		return c.Redirect(a.LoginPath+"?next="+url.QueryEscape(c.OriginalURL()), status)
	}
}

// CurrentUser returns the user LoadSession found, or nil.
func CurrentUser(c *fiber.Ctx) *SessionUser {
	user, _ := c.Locals(TemplateUserKey).(*SessionUser)
	return user
}

// IsSafeRedirect reports whether target stays on host. Relative paths are
// safe; protocol relative and backslash tricks are not.
func IsSafeRedirect(host, target string) bool {
	if target == "" || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return strings.HasPrefix(u.Path, "/")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

// RedirectTarget is where a user lands after login: next when it is safe,
// otherwise the landing page for their role.
func RedirectTarget(host, next string, user *SessionUser) string {
	if IsSafeRedirect(host, next) {
		return next
	}
	if user == nil {
		return "/"
	}
	return LandingPath(user.Role)
}

// errorHandler renders errors/<code> for rich errors and 500 otherwise.
func (a *RouteAuthenticator) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An unexpected server error occurred"

	var fiberErr *fiber.Error
	var richErr *goerrors.Error
	switch {
	case goerrors.As(err, &fiberErr):
		code = fiberErr.Code
		message = fiberErr.Message
	case goerrors.As(err, &richErr):
		if richErr.Code >= 400 {
			code = richErr.Code
		}
		message = richErr.Message
		a.Logger.Debug("request failed", "details", print.MaybePrettyJSON(richErr.Metadata))
	}

	if code >= fiber.StatusInternalServerError {
		a.Logger.Error("request failed", "path", c.Path(), "status", code, "error", err)
	}

	if code == fiber.StatusUnauthorized {
		return c.Redirect(a.LoginPath+"?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusFound)
	}

	view := errorView(code)
	return c.Status(code).Render(view, fiber.Map{
		"status":  code,
		"message": message,
	})
}

func errorView(code int) string {
	switch code {
	case fiber.StatusBadRequest, fiber.StatusForbidden, fiber.StatusNotFound,
		fiber.StatusGone, fiber.StatusServiceUnavailable:
		return "errors/" + strconv.Itoa(code)
	default:
		return "errors/500"
	}
}
