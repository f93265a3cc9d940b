package accounts_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	accounts "github.com/goliatone/go-accounts-web"
	"github.com/goliatone/go-accounts-web/apiclient"
	"github.com/stretchr/testify/mock"
)

const (
	testSharedKey  = "Key"
	testResetSalt  = "ResetPasswordSalt"
	testInviteSalt = "InviteEmailSalt"
)

// MockAccountAPI implements accounts.AccountAPI
type MockAccountAPI struct {
	mock.Mock
}

func (m *MockAccountAPI) GetUser(ctx context.Context, id int) (*apiclient.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*apiclient.User)
	return u, args.Error(1)
}

func (m *MockAccountAPI) GetUserByEmail(ctx context.Context, email string) (*apiclient.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*apiclient.User)
	return u, args.Error(1)
}

func (m *MockAccountAPI) AuthenticateUser(ctx context.Context, email, password string) (*apiclient.User, error) {
	args := m.Called(ctx, email, password)
	u, _ := args.Get(0).(*apiclient.User)
	return u, args.Error(1)
}

func (m *MockAccountAPI) CreateUser(ctx context.Context, payload apiclient.CreateUserRequest) (*apiclient.User, error) {
	args := m.Called(ctx, payload)
	u, _ := args.Get(0).(*apiclient.User)
	return u, args.Error(1)
}

func (m *MockAccountAPI) UpdateUserPassword(ctx context.Context, id int, password, updater string) (bool, error) {
	args := m.Called(ctx, id, password, updater)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountAPI) UpdateUser(ctx context.Context, id int, fields map[string]any, updater string) error {
	args := m.Called(ctx, id, fields, updater)
	return args.Error(0)
}

func (m *MockAccountAPI) Status(ctx context.Context) (map[string]any, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(map[string]any)
	return s, args.Error(1)
}

// MockNotifier implements accounts.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendEmail(ctx context.Context, to, templateID string, personalisation map[string]any, reference string) error {
	args := m.Called(ctx, to, templateID, personalisation, reference)
	return args.Error(0)
}

// MockRedeemer implements accounts.Redeemer
type MockRedeemer struct {
	mock.Mock
}

func (m *MockRedeemer) Redeem(ctx context.Context, tokenID string, userID int) error {
	args := m.Called(ctx, tokenID, userID)
	return args.Error(0)
}

func (m *MockRedeemer) IsRedeemed(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

// recordingLogger keeps every line so tests can assert on log codes.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	b.WriteString(level + " " + msg)
	for _, a := range args {
		fmt.Fprintf(&b, " %v", a)
	}
	l.lines = append(l.lines, b.String())
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args...) }

func (l *recordingLogger) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []accounts.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testTokenConfig() accounts.TokenServiceConfig {
	return accounts.TokenServiceConfig{
		SharedKey:         testSharedKey,
		ResetPasswordSalt: testResetSalt,
		InviteEmailSalt:   testInviteSalt,
		ResetTokenTTL:     24 * time.Hour,
		InviteTokenTTL:    7 * 24 * time.Hour,
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
