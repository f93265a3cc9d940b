package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-accounts-web/notify"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultFlowTimeout bounds every flow's outbound calls.
const DefaultFlowTimeout = 10 * time.Second

// Services bundles the collaborators shared by the account flows.
type Services struct {
	API        AccountAPI
	Notifier   Notifier
	Tokens     *TokenService
	Policy     PasswordPolicy
	Templates  NotifyTemplates
	DecoyEmail string
	// ResetURL renders the absolute link emailed for a reset token.
	ResetURL func(token string) string
	Activity ActivitySink
	Logger   Logger
	Timeout  time.Duration
}

// Validate checks the required collaborators are present.
func (s Services) Validate() error {
	switch {
	case s.API == nil:
		return goerrors.New("account api is required", goerrors.CategoryBadInput)
	case s.Notifier == nil:
		return goerrors.New("notifier is required", goerrors.CategoryBadInput)
	case s.Tokens == nil:
		return goerrors.New("token service is required", goerrors.CategoryBadInput)
	case s.ResetURL == nil:
		return goerrors.New("reset url builder is required", goerrors.CategoryBadInput)
	}
	return nil
}

func (s Services) normalize() Services {
	s.Logger = normalizeLogger(s.Logger)
	s.Activity = normalizeActivitySink(s.Activity)
	if s.Timeout <= 0 {
		s.Timeout = DefaultFlowTimeout
	}
	if s.Policy.Blocklist == nil {
		s.Policy = DefaultPasswordPolicy(DefaultPasswordBlocklist())
	}
	return s
}

func (s Services) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.Timeout)
}

func (s Services) record(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, s.Activity, s.Logger, event)
}

// EmailHash is the form an email address takes in logs, events and
// notification references.
func EmailHash(email string) string {
	return notify.HashString(email)
}

// NotificationReference builds the reference sent with a notification.
func NotificationReference(kind, email string) string {
	return kind + "-" + EmailHash(strings.TrimSpace(email))
}

const (
	refResetPassword         = "reset-password"
	refResetPasswordInactive = "reset-password-inactive"
	refChangePasswordAlert   = "change-password-alert"
)

// sendPasswordChangedAlert is best effort: failures are logged and dropped.
func (s Services) sendPasswordChangedAlert(ctx context.Context, userID int, email string) {
	if s.Templates.ChangePasswordAlert == "" {
		return
	}
	err := s.Notifier.SendEmail(ctx, email, s.Templates.ChangePasswordAlert, nil,
		NotificationReference(refChangePasswordAlert, email))
	if err != nil {
		s.Logger.Error("reset-password.alert-failed: password changed alert failed to send",
			"code", "reset-password.alert-failed", "email_hash", EmailHash(email), "error", err)
		s.record(ctx, ActivityEvent{
			EventType: ActivityEventNotificationFailed,
			UserID:    userID,
			EmailHash: EmailHash(email),
			Metadata:  map[string]any{"template": "change_password_alert"},
		})
	}
}
