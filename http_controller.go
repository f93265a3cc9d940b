package accounts

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	MsgEmailSent = "If the email address you've entered belongs to a Digital Marketplace account, " +
		"we'll send a link to reset the password. If you don’t receive this, email " +
		"enquiries@digitalmarketplace.service.gov.uk."
	MsgResetTokenExpired = "This password reset link has expired. Enter your email address and " +
		"we’ll send you a new one. Password reset links are only valid for 24 hours."
	MsgPasswordUpdated    = "You have successfully changed your password."
	MsgPasswordNotUpdated = "Could not update password due to an error."
	MsgNoAccount          = "Make sure you've entered the right email address and password. Accounts " +
		"are locked after 10 failed attempts. If you’ve forgotten your password you can reset it by " +
		"clicking ‘Forgotten password’."
	MsgInvalidInvitation = "The link you used to create an account is not valid. Check you’ve entered " +
		"the correct link. If you still can’t create an account, email " +
		"enquiries@digitalmarketplace.service.gov.uk"
	MsgStatusAPIError = "Error connecting to the api."
)

// UserResearchCookie hides the user research banner once the page was seen.
const UserResearchCookie = "seen_user_research_message"

// AccountControllerRoutes are paths relative to the controller prefix.
type AccountControllerRoutes struct {
	Login          string
	Logout         string
	ResetPassword  string
	ChangePassword string
	CreateUser     string
	UserResearch   string
	CookieSettings string
	Status         string
}

type AccountControllerViews struct {
	Login           string
	RequestReset    string
	ResetPassword   string
	ChangePassword  string
	CreateUser      string
	CreateUserError string
	UserResearch    string
	CookieSettings  string
	BadRequest      string
}

// AccountController serves the account pages.
type AccountController struct {
	Debug   bool
	Logger  Logger
	Prefix  string
	Version string
	Routes  *AccountControllerRoutes
	Views   *AccountControllerViews
	Auther  *RouteAuthenticator
	// DashboardURL is where a logged in user goes after a settings change.
	DashboardURL func(user *SessionUser) string
	Now          func() time.Time

	svc            Services
	initReset      *InitializePasswordResetHandler
	finalizeReset  *FinalizePasswordResetHandler
	changePassword *ChangePasswordHandler
	inspectInvite  *InspectInvitationHandler
	createUser     *CreateUserHandler
	userResearch   *UpdateUserResearchHandler
}

type AccountControllerOption func(*AccountController) *AccountController

// WithControllerPrefix mounts the controller under prefix, e.g. "/user".
func WithControllerPrefix(prefix string) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Prefix = strings.TrimRight(prefix, "/")
		return a
	}
}

func WithControllerVersion(version string) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Version = version
		return a
	}
}

func WithControllerDebug(debug bool) AccountControllerOption {
	return func(a *AccountController) *AccountController {
		a.Debug = debug
		return a
	}
}

// NewAccountController builds the controller and its flow handlers.
func NewAccountController(svc Services, auther *RouteAuthenticator, opts ...AccountControllerOption) (*AccountController, error) {
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	if auther == nil {
		return nil, goerrors.New("route authenticator is required", goerrors.CategoryBadInput)
	}
	svc = svc.normalize()

	a := &AccountController{
		Logger: svc.Logger,
		Auther: auther,
		Routes: &AccountControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			ResetPassword:  "/reset-password",
			ChangePassword: "/change-password",
			CreateUser:     "/create",
			UserResearch:   "/notifications/user-research",
			CookieSettings: "/cookie-settings",
			Status:         "/_status",
		},
		Views: &AccountControllerViews{
			Login:           "auth/login",
			RequestReset:    "auth/request-password-reset",
			ResetPassword:   "auth/reset-password",
			ChangePassword:  "auth/change-password",
			CreateUser:      "auth/create-user",
			CreateUserError: "auth/create-user-error",
			UserResearch:    "notifications/user-research-consent",
			CookieSettings:  "cookies/cookie-settings",
			BadRequest:      "errors/400",
		},
		DashboardURL: func(user *SessionUser) string {
			if user == nil {
				return "/"
			}
			return LandingPath(user.Role)
		},
		Now: time.Now,

		svc:            svc,
		initReset:      NewInitializePasswordResetHandler(svc),
		finalizeReset:  NewFinalizePasswordResetHandler(svc),
		changePassword: NewChangePasswordHandler(svc),
		inspectInvite:  NewInspectInvitationHandler(svc),
		createUser:     NewCreateUserHandler(svc),
		userResearch:   NewUpdateUserResearchHandler(svc),
	}

	for _, opt := range opts {
		a = opt(a)
	}

	return a, nil
}

// RegisterAccountRoutes mounts the account pages on app under the
// controller prefix. The status route is mounted at the root. Middleware in
// mw runs after the session is loaded, so it can bind to the session id.
func RegisterAccountRoutes(app fiber.Router, a *AccountController, mw ...fiber.Handler) {
	app.Get(a.Routes.Status, a.Status).Name("status.get")

	r := app.Group(a.Prefix, append([]fiber.Handler{a.Auther.LoadSession()}, mw...)...)

	r.Get(a.Routes.Login, a.LoginShow).Name("login.get")
	r.Post(a.Routes.Login, a.LoginPost).Name("login.post")
	r.Post(a.Routes.Logout, a.Logout).Name("logout.post")

	r.Get(a.Routes.ResetPassword, a.RequestResetShow).Name("reset-password.get")
	r.Post(a.Routes.ResetPassword, a.RequestResetPost).Name("reset-password.post")
	r.Get(a.Routes.ResetPassword+"/:token", a.ResetPasswordShow).Name("reset-password-token.get")
	r.Post(a.Routes.ResetPassword+"/:token", a.ResetPasswordPost).Name("reset-password-token.post")

	protected := a.Auther.ProtectedRoute()
	r.Get(a.Routes.ChangePassword, protected, a.ChangePasswordShow).Name("change-password.get")
	r.Post(a.Routes.ChangePassword, protected, a.ChangePasswordPost).Name("change-password.post")

	r.Get(a.Routes.CreateUser+"/:token", a.CreateUserShow).Name("create-user.get")
	r.Post(a.Routes.CreateUser+"/:token", a.CreateUserPost).Name("create-user.post")

	r.Get(a.Routes.UserResearch, protected, a.UserResearchShow).Name("user-research.get")
	r.Post(a.Routes.UserResearch, protected, a.UserResearchPost).Name("user-research.post")

	r.Get(a.Routes.CookieSettings, a.CookieSettings).Name("cookie-settings.get")
}

// ErrorHandler is the fiber error handler for the account app.
func (a *AccountController) ErrorHandler(c *fiber.Ctx, err error) error {
	return a.Auther.errorHandler(c, err)
}

func (a *AccountController) path(route string) string {
	return a.Prefix + route
}

// render pops pending flashes into the view and renders with status.
func (a *AccountController) render(c *fiber.Ctx, status int, view string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	flashes, err := a.Auther.Sessions().PopFlashes(c)
	if err != nil {
		a.Logger.Warn("failed to read flashes", "error", err)
	}
	data["flashes"] = FlashesByCategory(flashes)
	data["url_prefix"] = a.Prefix
	return c.Status(status).Render(view, data)
}

func (a *AccountController) redirectWithFlash(c *fiber.Ctx, target string, category FlashCategory, msg string) error {
	if err := a.Auther.Sessions().AddFlash(c, category, msg); err != nil {
		return err
	}
	return c.Redirect(target, fiber.StatusFound)
}

func (a *AccountController) debug(label string, v any) {
	if a.Debug {
		a.Logger.Debug(label, "value", print.MaybePrettyJSON(v))
	}
}

func (a *AccountController) LoginShow(c *fiber.Ctx) error {
	next := c.Query("next")
	if user := CurrentUser(c); user != nil && !a.Auther.Sessions().HasFlashes(c) {
		return c.Redirect(RedirectTarget(c.Hostname(), next, user), fiber.StatusFound)
	}

	return a.render(c, fiber.StatusOK, a.Views.Login, fiber.Map{
		"form":   LoginRequest{},
		"errors": map[string]string{},
		"next":   next,
	})
}

func (a *AccountController) LoginPost(c *fiber.Ctx) error {
	next := c.Query("next")
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Failed to parse form")
	}
	payload.Normalize()

	if err := payload.Validate(); err != nil {
		return a.render(c, fiber.StatusBadRequest, a.Views.Login, fiber.Map{
			"form":   LoginRequest{EmailAddress: payload.EmailAddress},
			"errors": FormatValidationErrorToMap(err),
			"next":   next,
		})
	}

	user, err := a.Auther.Login(c, *payload)
	if err != nil {
		if HasTextCode(err, TextCodeInvalidCredentials) {
			return a.render(c, fiber.StatusForbidden, a.Views.Login, fiber.Map{
				"form":   LoginRequest{EmailAddress: payload.EmailAddress},
				"errors": map[string]string{},
				"error":  MsgNoAccount,
				"next":   next,
			})
		}
		return err
	}

	return c.Redirect(RedirectTarget(c.Hostname(), next, user), fiber.StatusFound)
}

func (a *AccountController) Logout(c *fiber.Ctx) error {
	if err := a.Auther.Logout(c); err != nil {
		return err
	}
	return c.Redirect(a.path(a.Routes.Login), fiber.StatusFound)
}

func (a *AccountController) RequestResetShow(c *fiber.Ctx) error {
	return a.render(c, fiber.StatusOK, a.Views.RequestReset, fiber.Map{
		"form":   EmailAddressPayload{},
		"errors": map[string]string{},
	})
}

func (a *AccountController) RequestResetPost(c *fiber.Ctx) error {
	payload := new(EmailAddressPayload)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Failed to parse form")
	}
	payload.Normalize()

	if err := payload.Validate(); err != nil {
		return a.render(c, fiber.StatusBadRequest, a.Views.RequestReset, fiber.Map{
			"form":   payload,
			"errors": FormatValidationErrorToMap(err),
		})
	}

	var res *InitializePasswordResetResponse
	err := a.initReset.Execute(c.UserContext(), InitializePasswordResetMessage{
		EmailAddress: payload.EmailAddress,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			res = resp
		},
	})
	if err != nil {
		return err
	}
	a.debug("reset request", res)

	return a.redirectWithFlash(c, a.path(a.Routes.ResetPassword), FlashMessage, MsgEmailSent)
}

func (a *AccountController) ResetPasswordShow(c *fiber.Ctx) error {
	token := c.Params("token")

	v := a.svc.Tokens.Validate(c.UserContext(), PurposeResetPassword, token)
	if !v.Valid() {
		a.Logger.Info("password reset token rejected", "outcome", v.Outcome, "error", v.Err)
		return a.redirectWithFlash(c, a.path(a.Routes.ResetPassword), FlashError, MsgResetTokenExpired)
	}

	email := v.Account.EmailAddress
	if email == "" {
		email, _ = v.Token.String("email")
	}

	return a.render(c, fiber.StatusOK, a.Views.ResetPassword, fiber.Map{
		"email_address": email,
		"token":         token,
		"form":          PasswordResetPayload{},
		"errors":        map[string]string{},
	})
}

func (a *AccountController) ResetPasswordPost(c *fiber.Ctx) error {
	token := c.Params("token")
	payload := new(PasswordResetPayload)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Failed to parse form")
	}

	var res *FinalizePasswordResetResponse
	err := a.finalizeReset.Execute(c.UserContext(), FinalizePasswordResetMessage{
		Token:   token,
		Payload: *payload,
		OnResponse: func(resp *FinalizePasswordResetResponse) {
			res = resp
		},
	})
	if err != nil {
		return err
	}

	switch res.Outcome {
	case ResetFinalizeBadToken:
		return a.redirectWithFlash(c, a.path(a.Routes.ResetPassword), FlashError, MsgResetTokenExpired)
	case ResetFinalizeFormError:
		return a.render(c, fiber.StatusBadRequest, a.Views.ResetPassword, fiber.Map{
			"email_address": res.EmailAddress,
			"token":         token,
			"form":          PasswordResetPayload{},
			"errors":        res.Errors,
		})
	case ResetFinalizeUpdated:
		return a.redirectWithFlash(c, a.path(a.Routes.Login), FlashSuccess, MsgPasswordUpdated)
	default:
		return a.redirectWithFlash(c, a.path(a.Routes.Login), FlashError, MsgPasswordNotUpdated)
	}
}

func (a *AccountController) ChangePasswordShow(c *fiber.Ctx) error {
	return a.render(c, fiber.StatusOK, a.Views.ChangePassword, fiber.Map{
		"form":   PasswordChangePayload{},
		"errors": map[string]string{},
	})
}

func (a *AccountController) ChangePasswordPost(c *fiber.Ctx) error {
	user := CurrentUser(c)
	payload := new(PasswordChangePayload)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Failed to parse form")
	}

	var res *ChangePasswordResponse
	err := a.changePassword.Execute(c.UserContext(), ChangePasswordMessage{
		User:    user,
		Payload: *payload,
		OnResponse: func(resp *ChangePasswordResponse) {
			res = resp
		},
	})
	if err != nil {
		return err
	}

	switch res.Outcome {
	case ChangePasswordUpdated:
		return a.redirectWithFlash(c, a.DashboardURL(user), FlashSuccess, MsgPasswordUpdated)
	case ChangePasswordUpdateError:
		return a.redirectWithFlash(c, a.path(a.Routes.ChangePassword), FlashError, MsgPasswordNotUpdated)
	default:
		return a.render(c, fiber.StatusBadRequest, a.Views.ChangePassword, fiber.Map{
			"form":   PasswordChangePayload{},
			"errors": res.Errors,
		})
	}
}

func (a *AccountController) CreateUserShow(c *fiber.Ctx) error {
	token := c.Params("token")

	var res *InvitationResponse
	err := a.inspectInvite.Execute(c.UserContext(), InspectInvitationMessage{
		Token: token,
		OnResponse: func(resp *InvitationResponse) {
			res = resp
		},
	})
	if err != nil {
		return err
	}
	a.debug("invitation", res)

	switch res.Outcome {
	case CreateUserBadToken:
		return a.render(c, fiber.StatusBadRequest, a.Views.BadRequest, fiber.Map{
			"error_message": MsgInvalidInvitation,
		})
	case CreateUserReady:
		return a.render(c, fiber.StatusOK, a.Views.CreateUser, fiber.Map{
			"email_address": res.Invitation.EmailAddress,
			"role":          res.Invitation.Role,
			"supplier_name": res.Invitation.SupplierName,
			"token":         token,
			"form":          CreateUserPayload{},
			"errors":        map[string]string{},
		})
	default:
		return a.render(c, fiber.StatusBadRequest, a.Views.CreateUserError, fiber.Map{
			"outcome":    string(res.Outcome),
			"reason":     string(res.Reason),
			"role":       res.Invitation.Role,
			"invitation": res.Invitation,
			"user":       res.Existing,
		})
	}
}

func (a *AccountController) CreateUserPost(c *fiber.Ctx) error {
	token := c.Params("token")
	payload := new(CreateUserPayload)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Failed to parse form")
	}

	var res *CreateUserResponse
	err := a.createUser.Execute(c.UserContext(), CreateUserMessage{
		Token:   token,
		Payload: *payload,
		OnResponse: func(resp *CreateUserResponse) {
			res = resp
		},
	})
	if err != nil {
		return err
	}

	switch res.Outcome {
	case CreateUserBadToken:
		return a.render(c, fiber.StatusBadRequest, a.Views.BadRequest, fiber.Map{
			"error_message": MsgInvalidInvitation,
		})
	case CreateUserFormError:
		return a.render(c, fiber.StatusBadRequest, a.Views.CreateUser, fiber.Map{
			"email_address": res.Invitation.EmailAddress,
			"role":          res.Invitation.Role,
			"supplier_name": res.Invitation.SupplierName,
			"token":         token,
			"form":          CreateUserPayload{Name: payload.Name, PhoneNumber: payload.PhoneNumber},
			"errors":        res.Errors,
		})
	case CreateUserCreated:
		user := NewSessionUser(res.User)
		target := LandingPath(user.Role)
		track := Flash{Category: FlashTrackPageView, Message: target + "?account-created=true"}
		if err := a.Auther.Sessions().Login(c, user, track); err != nil {
			return err
		}
		return c.Redirect(target, fiber.StatusFound)
	default:
		data := fiber.Map{
			"outcome":    string(res.Outcome),
			"role":       res.Invitation.Role,
			"invitation": res.Invitation,
		}
		if res.Outcome == CreateUserCreateFailed {
			data["error"] = res.APIError
			data["error_code"] = goerrorsTextCode(CreateUserError(res.APIError))
		}
		return a.render(c, fiber.StatusBadRequest, a.Views.CreateUserError, data)
	}
}

func (a *AccountController) UserResearchShow(c *fiber.Ctx) error {
	user := CurrentUser(c)
	optedIn, err := a.svc.UserResearchOptedIn(c.UserContext(), user.ID)
	if err != nil {
		return err
	}

	a.setUserResearchCookie(c)
	return a.render(c, fiber.StatusOK, a.Views.UserResearch, fiber.Map{
		"form":          UserResearchPayload{UserResearchOptIn: optedIn},
		"errors":        map[string]string{},
		"dashboard_url": a.DashboardURL(user),
	})
}

func (a *AccountController) UserResearchPost(c *fiber.Ctx) error {
	user := CurrentUser(c)
	payload := UserResearchPayload{
		UserResearchOptIn: parseCheckbox(c.FormValue("user_research_opt_in")),
	}

	if err := a.userResearch.Execute(c.UserContext(), UpdateUserResearchMessage{
		User:    user,
		Payload: payload,
	}); err != nil {
		return err
	}

	a.setUserResearchCookie(c)
	return a.redirectWithFlash(c, a.DashboardURL(user), FlashSuccess, MsgPreferenceSaved)
}

func (a *AccountController) setUserResearchCookie(c *fiber.Ctx) {
	if c.Cookies(UserResearchCookie) != "" {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:    UserResearchCookie,
		Value:   "yes",
		Path:    "/",
		Expires: a.Now().Add(90 * 24 * time.Hour),
	})
}

func (a *AccountController) CookieSettings(c *fiber.Ctx) error {
	return a.render(c, fiber.StatusOK, a.Views.CookieSettings, nil)
}

// Status reports the service and, unless ignore-dependencies is set, the
// data API status.
func (a *AccountController) Status(c *fiber.Ctx) error {
	if _, ok := c.Queries()["ignore-dependencies"]; ok {
		return c.JSON(fiber.Map{"status": "ok"})
	}

	apiStatus, err := a.svc.API.Status(c.UserContext())
	if err != nil || apiStatus == nil || apiStatus["status"] != "ok" {
		if err != nil {
			a.Logger.Error("status check failed", "error", err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":     "error",
			"version":    a.Version,
			"api_status": apiStatus,
			"message":    MsgStatusAPIError,
		})
	}

	return c.JSON(fiber.Map{
		"status":     "ok",
		"version":    a.Version,
		"api_status": apiStatus,
	})
}

// StripTrailingSlash 301-redirects any path but "/" that ends in a slash.
func StripTrailingSlash() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || !strings.HasSuffix(path, "/") {
			return c.Next()
		}

		// leading "//" or "/\" would make the Location protocol relative
		target := "/" + strings.TrimLeft(strings.TrimRight(path, "/"), "/\\")
		if q := string(c.Request().URI().QueryString()); q != "" {
			target += "?" + q
		}
		return c.Redirect(target, fiber.StatusMovedPermanently)
	}
}

// ResetURLBuilder returns the absolute reset link builder for baseURL.
func ResetURLBuilder(baseURL, prefix string) func(token string) string {
	base := strings.TrimRight(baseURL, "/") + strings.TrimRight(prefix, "/") + "/reset-password/"
	return func(token string) string {
		return base + url.PathEscape(token)
	}
}

func parseCheckbox(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "yes", "1", "y":
		return true
	}
	return false
}

func goerrorsTextCode(err error) string {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return fmt.Sprint(err)
}
