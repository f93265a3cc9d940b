package accounts_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts-web"
)

type sessionProbe struct {
	User    *accounts.SessionUser `json:"user"`
	Flashes []accounts.Flash      `json:"flashes"`
	Pending bool                  `json:"pending"`
}

func newSessionApp(t *testing.T) *fiber.App {
	t.Helper()

	m := accounts.NewSessionManager(accounts.NewSessionStore(accounts.SessionConfig{
		CookieName: "test_session",
		Lifetime:   time.Minute,
	}))

	app := fiber.New()
	app.Post("/login", func(c *fiber.Ctx) error {
		return m.Login(c, &accounts.SessionUser{ID: 7, EmailAddress: "a@b.com", Role: accounts.RoleBuyer},
			accounts.Flash{Category: accounts.FlashTrackPageView, Message: "/?account-created=true"})
	})
	app.Post("/flash", func(c *fiber.Ctx) error {
		return m.AddFlash(c, accounts.FlashSuccess, "saved")
	})
	app.Post("/logout", func(c *fiber.Ctx) error {
		return m.Logout(c)
	})
	app.Get("/probe", func(c *fiber.Ctx) error {
		probe := sessionProbe{Pending: m.HasFlashes(c)}
		probe.User, _ = m.CurrentUser(c)
		flashes, err := m.PopFlashes(c)
		if err != nil {
			return err
		}
		probe.Flashes = flashes
		return c.JSON(probe)
	})
	return app
}

func sessionRequest(t *testing.T, app *fiber.App, method, path string, cookie *http.Cookie) (*http.Response, *http.Cookie) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	for _, c := range resp.Cookies() {
		if c.Name == "test_session" {
			cookie = c
		}
	}
	return resp, cookie
}

func readProbe(t *testing.T, resp *http.Response) sessionProbe {
	t.Helper()
	var probe sessionProbe
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&probe))
	return probe
}

func TestSessionManager_LoginCarriesFlashes(t *testing.T) {
	app := newSessionApp(t)

	_, cookie := sessionRequest(t, app, http.MethodPost, "/flash", nil)
	require.NotNil(t, cookie)
	anonymousID := cookie.Value

	_, cookie = sessionRequest(t, app, http.MethodPost, "/login", cookie)
	assert.NotEqual(t, anonymousID, cookie.Value, "login should rotate the session id")
	assert.True(t, cookie.HttpOnly)

	resp, cookie := sessionRequest(t, app, http.MethodGet, "/probe", cookie)
	probe := readProbe(t, resp)
	require.NotNil(t, probe.User)
	assert.Equal(t, 7, probe.User.ID)
	assert.True(t, probe.Pending)
	assert.Equal(t, []accounts.Flash{
		{Category: accounts.FlashSuccess, Message: "saved"},
		{Category: accounts.FlashTrackPageView, Message: "/?account-created=true"},
	}, probe.Flashes)

	resp, _ = sessionRequest(t, app, http.MethodGet, "/probe", cookie)
	probe = readProbe(t, resp)
	assert.False(t, probe.Pending)
	assert.Empty(t, probe.Flashes, "flashes are shown once")
	assert.NotNil(t, probe.User)
}

func TestSessionManager_Logout(t *testing.T) {
	app := newSessionApp(t)

	_, cookie := sessionRequest(t, app, http.MethodPost, "/login", nil)
	sessionRequest(t, app, http.MethodPost, "/logout", cookie)

	resp, _ := sessionRequest(t, app, http.MethodGet, "/probe", cookie)
	probe := readProbe(t, resp)
	assert.Nil(t, probe.User)
	assert.Empty(t, probe.Flashes)
}

func TestFlashesByCategory(t *testing.T) {
	grouped := accounts.FlashesByCategory([]accounts.Flash{
		{Category: accounts.FlashError, Message: "one"},
		{Category: accounts.FlashError, Message: "two"},
		{Category: accounts.FlashTrackPageView, Message: "/x"},
	})

	assert.Equal(t, map[string][]string{
		"error":           {"one", "two"},
		"track_page_view": {"/x"},
	}, grouped)
}
