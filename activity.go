package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess          ActivityEventType = "account.login.success"
	ActivityEventLoginFailure          ActivityEventType = "account.login.failure"
	ActivityEventLogout                ActivityEventType = "account.logout"
	ActivityEventResetRequested        ActivityEventType = "account.password.reset_requested"
	ActivityEventPasswordReset         ActivityEventType = "account.password.reset"
	ActivityEventPasswordChanged       ActivityEventType = "account.password.changed"
	ActivityEventResetTokenRejected    ActivityEventType = "account.password.token_rejected"
	ActivityEventAccountCreated        ActivityEventType = "account.created"
	ActivityEventInvitationRejected    ActivityEventType = "account.invitation.rejected"
	ActivityEventPreferenceUpdated     ActivityEventType = "account.preference.updated"
	ActivityEventNotificationFailed    ActivityEventType = "account.notification.failed"
	ActivityEventNotificationDelivered ActivityEventType = "account.notification.sent"
)

// ActivityEvent captures audit-friendly information about an action.
// EmailHash is set instead of the address so sinks never see it in clear.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     int
	EmailHash  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity fills in defaults and forwards to sink, logging failures.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.UserID == 0 {
		if user, ok := FromContext(ctx); ok {
			event.UserID = user.ID
		}
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		normalizeLogger(logger).Warn("activity sink record failed", "event", event.EventType, "error", err)
	}
}
