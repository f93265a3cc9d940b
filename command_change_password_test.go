package accounts_test

import (
	"context"
	"errors"
	"testing"

	accounts "github.com/goliatone/go-accounts-web"
	"github.com/goliatone/go-accounts-web/apiclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func changePassword(t *testing.T, f *flowFixture, user *accounts.SessionUser, payload accounts.PasswordChangePayload) (*accounts.ChangePasswordResponse, error) {
	t.Helper()
	var res *accounts.ChangePasswordResponse
	err := accounts.NewChangePasswordHandler(f.svc).Execute(context.Background(), accounts.ChangePasswordMessage{
		User:       user,
		Payload:    payload,
		OnResponse: func(r *accounts.ChangePasswordResponse) { res = r },
	})
	return res, err
}

func TestChangePasswordHandler(t *testing.T) {
	user := &accounts.SessionUser{ID: 10, EmailAddress: "me@example.gov.uk", Role: accounts.RoleBuyer}
	good := accounts.PasswordChangePayload{
		OldPassword:     "old-password-1",
		Password:        "new-password-1",
		ConfirmPassword: "new-password-1",
	}

	t.Run("updated", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("AuthenticateUser", mock.Anything, user.EmailAddress, "old-password-1").
			Return(&apiclient.User{ID: 10, EmailAddress: user.EmailAddress}, nil)
		f.api.On("UpdateUserPassword", mock.Anything, 10, "new-password-1", user.EmailAddress).Return(true, nil)
		f.notifier.On("SendEmail", mock.Anything, user.EmailAddress, "alert-template", mock.Anything,
			accounts.NotificationReference("change-password-alert", user.EmailAddress)).Return(nil)

		res, err := changePassword(t, f, user, good)
		require.NoError(t, err)
		assert.Equal(t, accounts.ChangePasswordUpdated, res.Outcome)
		assert.Equal(t, []accounts.ActivityEventType{accounts.ActivityEventPasswordChanged}, f.sink.types())
		f.notifier.AssertExpectations(t)
	})

	t.Run("alert failure does not fail the change", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("AuthenticateUser", mock.Anything, mock.Anything, mock.Anything).Return(&apiclient.User{ID: 10}, nil)
		f.api.On("UpdateUserPassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
		f.notifier.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("notify down"))

		res, err := changePassword(t, f, user, good)
		require.NoError(t, err)
		assert.Equal(t, accounts.ChangePasswordUpdated, res.Outcome)
		assert.Contains(t, f.sink.types(), accounts.ActivityEventNotificationFailed)
		assert.True(t, f.logger.contains("reset-password.alert-failed"))
	})

	t.Run("wrong old password", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("AuthenticateUser", mock.Anything, user.EmailAddress, "old-password-1").Return(nil, nil)

		res, err := changePassword(t, f, user, good)
		require.NoError(t, err)
		assert.Equal(t, accounts.ChangePasswordWrongOld, res.Outcome)
		assert.Equal(t, accounts.MsgOldPasswordWrong, res.Errors["old_password"])
		assert.True(t, f.logger.contains("change_password.fail"))
		f.api.AssertNotCalled(t, "UpdateUserPassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("form errors", func(t *testing.T) {
		f := newFlowFixture(t)

		res, err := changePassword(t, f, user, accounts.PasswordChangePayload{Password: "new-password-1", ConfirmPassword: "other"})
		require.NoError(t, err)
		assert.Equal(t, accounts.ChangePasswordFormError, res.Outcome)
		assert.Equal(t, accounts.MsgOldPassword, res.Errors["old_password"])
		assert.Equal(t, accounts.MsgPasswordsDontMatch, res.Errors["confirm_password"])
	})

	t.Run("update failure", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("AuthenticateUser", mock.Anything, mock.Anything, mock.Anything).Return(&apiclient.User{ID: 10}, nil)
		f.api.On("UpdateUserPassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("500"))

		res, err := changePassword(t, f, user, good)
		require.NoError(t, err)
		assert.Equal(t, accounts.ChangePasswordUpdateError, res.Outcome)
	})

	t.Run("no session", func(t *testing.T) {
		f := newFlowFixture(t)

		_, err := changePassword(t, f, nil, good)
		assert.True(t, accounts.HasTextCode(err, accounts.TextCodeSessionNotFound))
	})
}

func TestUpdateUserResearchHandler(t *testing.T) {
	user := &accounts.SessionUser{ID: 10, EmailAddress: "me@example.gov.uk"}

	t.Run("saves the flag", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("UpdateUser", mock.Anything, 10, map[string]any{accounts.UserResearchFieldName: true}, user.EmailAddress).Return(nil)

		err := accounts.NewUpdateUserResearchHandler(f.svc).Execute(context.Background(), accounts.UpdateUserResearchMessage{
			User:    user,
			Payload: accounts.UserResearchPayload{UserResearchOptIn: true},
		})
		require.NoError(t, err)
		assert.Equal(t, []accounts.ActivityEventType{accounts.ActivityEventPreferenceUpdated}, f.sink.types())
	})

	t.Run("api failure", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("UpdateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))

		err := accounts.NewUpdateUserResearchHandler(f.svc).Execute(context.Background(), accounts.UpdateUserResearchMessage{
			User: user,
		})
		assert.True(t, accounts.HasTextCode(err, accounts.TextCodeDependency))
		assert.Empty(t, f.sink.types())
	})

	t.Run("reads the current flag", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("GetUser", mock.Anything, 10).Return(&apiclient.User{ID: 10, UserResearchOptedIn: true}, nil).Once()
		f.api.On("GetUser", mock.Anything, 11).Return(nil, nil).Once()

		opted, err := f.svc.UserResearchOptedIn(context.Background(), 10)
		require.NoError(t, err)
		assert.True(t, opted)

		_, err = f.svc.UserResearchOptedIn(context.Background(), 11)
		assert.True(t, accounts.HasTextCode(err, accounts.TextCodeSessionNotFound))
	})
}
