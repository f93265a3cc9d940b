package accounts

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	goerrors "github.com/goliatone/go-errors"
)

const (
	sessionUserKey  = "user"
	sessionFlashKey = "_flashes"
)

// FlashCategory groups flash messages the way the templates render them.
type FlashCategory string

const (
	FlashSuccess FlashCategory = "success"
	FlashError   FlashCategory = "error"
	FlashMessage FlashCategory = "message"
	// FlashTrackPageView carries a virtual page view URL for analytics.
	FlashTrackPageView FlashCategory = "track-page-view"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category FlashCategory `json:"category"`
	Message  string        `json:"message"`
}

// SessionConfig configures the session cookie.
type SessionConfig struct {
	CookieName   string
	Lifetime     time.Duration
	CookieSecure bool
	// Storage keeps session data server side. Nil means in memory.
	Storage fiber.Storage
}

// NewSessionStore creates the fiber session store for cfg.
func NewSessionStore(cfg SessionConfig) *session.Store {
	if cfg.CookieName == "" {
		cfg.CookieName = "dm_session"
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = time.Hour
	}
	return session.New(session.Config{
		Expiration:     cfg.Lifetime,
		Storage:        cfg.Storage,
		KeyLookup:      "cookie:" + cfg.CookieName,
		CookieSecure:   cfg.CookieSecure,
		CookieHTTPOnly: true,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SessionManager keeps the logged in user and flash messages in the session.
// Values are stored as JSON strings so any fiber.Storage can hold them.
type SessionManager struct {
	store *session.Store
}

// NewSessionManager wraps store.
func NewSessionManager(store *session.Store) *SessionManager {
	return &SessionManager{store: store}
}

func (m *SessionManager) get(c *fiber.Ctx) (*session.Session, error) {
	sess, err := m.store.Get(c)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session")
	}
	return sess, nil
}

// Login rotates the session id and stores user in it, along with any
// flashes for the page the login redirects to. The rotated session cannot be
// reloaded within the same request, so flashes must be passed here.
func (m *SessionManager) Login(c *fiber.Ctx, user *SessionUser, flashes ...Flash) error {
	sess, err := m.get(c)
	if err != nil {
		return err
	}
	if err := sess.Regenerate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate session")
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	sess.Set(sessionUserKey, string(raw))

	if pending := append(readFlashes(sess), flashes...); len(pending) > 0 {
		rawFlashes, err := json.Marshal(pending)
		if err != nil {
			return err
		}
		sess.Set(sessionFlashKey, string(rawFlashes))
	}
	return sess.Save()
}

// Logout drops all session data, flashes included.
func (m *SessionManager) Logout(c *fiber.Ctx) error {
	sess, err := m.get(c)
	if err != nil {
		return err
	}
	return sess.Destroy()
}

// CurrentUser returns the logged in user, or ErrUnableToFindSession.
func (m *SessionManager) CurrentUser(c *fiber.Ctx) (*SessionUser, error) {
	sess, err := m.get(c)
	if err != nil {
		return nil, err
	}
	return sessionUser(sess)
}

func sessionUser(sess *session.Session) (*SessionUser, error) {
	raw, ok := sess.Get(sessionUserKey).(string)
	if !ok || raw == "" {
		return nil, ErrUnableToFindSession
	}
	user := &SessionUser{}
	if err := json.Unmarshal([]byte(raw), user); err != nil {
		return nil, ErrUnableToFindSession
	}
	return user, nil
}

// AddFlash queues a message for the next page.
func (m *SessionManager) AddFlash(c *fiber.Ctx, category FlashCategory, message string) error {
	sess, err := m.get(c)
	if err != nil {
		return err
	}
	flashes := readFlashes(sess)
	flashes = append(flashes, Flash{Category: category, Message: message})
	raw, err := json.Marshal(flashes)
	if err != nil {
		return err
	}
	sess.Set(sessionFlashKey, string(raw))
	return sess.Save()
}

// PopFlashes returns and clears the queued messages.
func (m *SessionManager) PopFlashes(c *fiber.Ctx) ([]Flash, error) {
	sess, err := m.get(c)
	if err != nil {
		return nil, err
	}
	flashes := readFlashes(sess)
	if len(flashes) == 0 {
		return nil, nil
	}
	sess.Delete(sessionFlashKey)
	return flashes, sess.Save()
}

// HasFlashes reports whether messages are queued without consuming them.
func (m *SessionManager) HasFlashes(c *fiber.Ctx) bool {
	sess, err := m.get(c)
	if err != nil {
		return false
	}
	return len(readFlashes(sess)) > 0
}

func readFlashes(sess *session.Session) []Flash {
	raw, ok := sess.Get(sessionFlashKey).(string)
	if !ok || raw == "" {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal([]byte(raw), &flashes); err != nil {
		return nil
	}
	return flashes
}

// FlashesByCategory groups flashes for templates. Dashes in category names
// become underscores so templates can use dotted access.
func FlashesByCategory(flashes []Flash) map[string][]string {
	out := map[string][]string{}
	for _, f := range flashes {
		key := strings.ReplaceAll(string(f.Category), "-", "_")
		out[key] = append(out[key], f.Message)
	}
	return out
}
