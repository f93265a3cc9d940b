package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-accounts-web/apiclient"
)

// Logger takes a message followed by alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AccountAPI is the slice of the external data API the account flows need.
// A nil account with a nil error means the account does not exist.
type AccountAPI interface {
	GetUser(ctx context.Context, id int) (*apiclient.User, error)
	GetUserByEmail(ctx context.Context, email string) (*apiclient.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*apiclient.User, error)
	CreateUser(ctx context.Context, payload apiclient.CreateUserRequest) (*apiclient.User, error)
	UpdateUserPassword(ctx context.Context, id int, password, updater string) (bool, error)
	UpdateUser(ctx context.Context, id int, fields map[string]any, updater string) error
	Status(ctx context.Context) (map[string]any, error)
}

// Notifier sends transactional email through the notification service.
type Notifier interface {
	SendEmail(ctx context.Context, to, templateID string, personalisation map[string]any, reference string) error
}

// Redeemer records reset tokens that have been consumed. Redeem must be
// atomic: only the first caller for a given token id succeeds.
type Redeemer interface {
	Redeem(ctx context.Context, tokenID string, userID int) error
	IsRedeemed(ctx context.Context, tokenID string) (bool, error)
}

// NotifyTemplates holds notification template ids per email kind.
type NotifyTemplates struct {
	ResetPassword         string
	ResetPasswordInactive string
	ChangePasswordAlert   string
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(logLine("ERR", msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(logLine("WRN", msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(logLine("INF", msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(logLine("DBG", msg, args...))
}

// logLine renders msg followed by key=value pairs.
func logLine(level, msg string, args ...any) string {
	var b strings.Builder
	b.WriteString("[" + level + "] ACCOUNTS " + msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return b.String()
}

type noopRedeemer struct{}

func (noopRedeemer) Redeem(context.Context, string, int) error { return nil }

func (noopRedeemer) IsRedeemed(context.Context, string) (bool, error) { return false, nil }

func normalizeRedeemer(r Redeemer) Redeemer {
	if r == nil {
		return noopRedeemer{}
	}
	return r
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
