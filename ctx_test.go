package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	_, ok = FromContext(WithContext(context.Background(), nil))
	assert.False(t, ok)

	user := &SessionUser{ID: 5, Role: RoleBuyer}
	got, ok := FromContext(WithContext(context.Background(), user))
	assert.True(t, ok)
	assert.Same(t, user, got)
}

func TestRecordActivity_FillsUserFromContext(t *testing.T) {
	var got ActivityEvent
	sink := ActivitySinkFunc(func(_ context.Context, e ActivityEvent) error {
		got = e
		return nil
	})

	ctx := WithContext(context.Background(), &SessionUser{ID: 9})
	recordActivity(ctx, sink, nil, ActivityEvent{EventType: ActivityEventPreferenceUpdated})

	assert.Equal(t, 9, got.UserID)
	assert.NotNil(t, got.Metadata)
	assert.False(t, got.OccurredAt.IsZero())

	recordActivity(ctx, sink, nil, ActivityEvent{EventType: ActivityEventLogout, UserID: 3})
	assert.Equal(t, 3, got.UserID)
}
