package accounts_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts-web"
	"github.com/goliatone/go-accounts-web/apiclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type flowFixture struct {
	api      *MockAccountAPI
	notifier *MockNotifier
	clock    *fakeClock
	sink     *recordingSink
	logger   *recordingLogger
	tokens   *accounts.TokenService
	svc      accounts.Services
}

func newFlowFixture(t *testing.T, opts ...accounts.TokenServiceOption) *flowFixture {
	t.Helper()

	f := &flowFixture{
		api:      new(MockAccountAPI),
		notifier: new(MockNotifier),
		clock:    newFakeClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)),
		sink:     &recordingSink{},
		logger:   &recordingLogger{},
	}

	opts = append([]accounts.TokenServiceOption{accounts.WithTokenClock(f.clock.Now)}, opts...)
	tokens, err := accounts.NewTokenService(testTokenConfig(), f.api, opts...)
	require.NoError(t, err)
	f.tokens = tokens

	f.svc = accounts.Services{
		API:      f.api,
		Notifier: f.notifier,
		Tokens:   tokens,
		Templates: accounts.NotifyTemplates{
			ResetPassword:         "reset-template",
			ResetPasswordInactive: "inactive-template",
			ChangePasswordAlert:   "alert-template",
		},
		DecoyEmail: "simulate-delivered@notifications.service.gov.uk",
		ResetURL:   accounts.ResetURLBuilder("https://www.example.gov.uk", "/user"),
		Activity:   f.sink,
		Logger:     f.logger,
	}
	return f
}

func TestInitializePasswordReset(t *testing.T) {
	run := func(t *testing.T, f *flowFixture, email string) *accounts.InitializePasswordResetResponse {
		t.Helper()
		var res *accounts.InitializePasswordResetResponse
		err := accounts.NewInitializePasswordResetHandler(f.svc).Execute(context.Background(),
			accounts.InitializePasswordResetMessage{
				EmailAddress: email,
				OnResponse:   func(r *accounts.InitializePasswordResetResponse) { res = r },
			})
		require.NoError(t, err)
		require.NotNil(t, res)
		return res
	}

	t.Run("active account", func(t *testing.T) {
		f := newFlowFixture(t)
		user := &apiclient.User{ID: 123, EmailAddress: "email@email.com", Role: accounts.RoleBuyer, Active: true}
		f.api.On("GetUserByEmail", mock.Anything, "email@email.com").Return(user, nil)

		var link string
		f.notifier.On("SendEmail", mock.Anything, "email@email.com", "reset-template", mock.Anything,
			accounts.NotificationReference("reset-password", "email@email.com")).
			Run(func(args mock.Arguments) {
				link, _ = args.Get(3).(map[string]any)["url"].(string)
			}).Return(nil)

		res := run(t, f, "email@email.com")
		assert.Equal(t, accounts.ResetRequestSent, res.Outcome)
		assert.Equal(t, accounts.ResetPathActive, res.Path)
		require.NotEmpty(t, link)

		f.api.On("GetUser", mock.Anything, 123).Return(user, nil)
		token := link[len("https://www.example.gov.uk/user/reset-password/"):]
		assert.True(t, f.tokens.Validate(context.Background(), accounts.PurposeResetPassword, token).Valid())
		assert.True(t, f.logger.contains("login.reset-email.sent"))
	})

	t.Run("unknown and inactive look identical", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("GetUserByEmail", mock.Anything, "nobody@example.com").Return(nil, nil)
		f.api.On("GetUserByEmail", mock.Anything, "asleep@example.com").
			Return(&apiclient.User{ID: 9, EmailAddress: "asleep@example.com", Role: accounts.RoleSupplier}, nil)

		f.notifier.On("SendEmail", mock.Anything, f.svc.DecoyEmail, "reset-template", mock.Anything, mock.Anything).Return(nil)
		f.notifier.On("SendEmail", mock.Anything, "asleep@example.com", "inactive-template", mock.Anything, mock.Anything).Return(nil)

		decoy := run(t, f, "nobody@example.com")
		inactive := run(t, f, "asleep@example.com")

		assert.Equal(t, decoy.Outcome, inactive.Outcome)
		assert.Equal(t, accounts.ResetPathDecoy, decoy.Path)
		assert.Equal(t, accounts.ResetPathInactive, inactive.Path)
		f.notifier.AssertExpectations(t)
	})

	t.Run("manager roles get nothing", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("GetUserByEmail", mock.Anything, "boss@example.gov.uk").
			Return(&apiclient.User{ID: 1, EmailAddress: "boss@example.gov.uk", Role: accounts.RoleAdminManager, Active: true}, nil)

		res := run(t, f, "boss@example.gov.uk")
		assert.Equal(t, accounts.ResetRequestSent, res.Outcome)
		assert.Equal(t, accounts.ResetPathManagerRole, res.Path)
		f.notifier.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lookup failure", func(t *testing.T) {
		f := newFlowFixture(t)
		f.api.On("GetUserByEmail", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

		err := accounts.NewInitializePasswordResetHandler(f.svc).Execute(context.Background(),
			accounts.InitializePasswordResetMessage{EmailAddress: "a@b.com"})
		assert.True(t, accounts.HasTextCode(err, accounts.TextCodeDependency))
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFlowFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := accounts.NewInitializePasswordResetHandler(f.svc).Execute(ctx,
			accounts.InitializePasswordResetMessage{EmailAddress: "a@b.com"})
		assert.Error(t, err)
		f.api.AssertNotCalled(t, "GetUserByEmail", mock.Anything, mock.Anything)
	})
}

func finalize(t *testing.T, f *flowFixture, token string, payload accounts.PasswordResetPayload) *accounts.FinalizePasswordResetResponse {
	t.Helper()
	var res *accounts.FinalizePasswordResetResponse
	err := accounts.NewFinalizePasswordResetHandler(f.svc).Execute(context.Background(),
		accounts.FinalizePasswordResetMessage{
			Token:      token,
			Payload:    payload,
			OnResponse: func(r *accounts.FinalizePasswordResetResponse) { res = r },
		})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestFinalizePasswordReset_SingleUse(t *testing.T) {
	f := newFlowFixture(t)
	account := &apiclient.User{ID: 123, EmailAddress: "email@email.com", Role: accounts.RoleBuyer, Active: true}
	f.api.On("GetUser", mock.Anything, 123).Return(account, nil)
	f.notifier.On("SendEmail", mock.Anything, "email@email.com", "alert-template", mock.Anything, mock.Anything).Return(nil)
	f.api.On("UpdateUserPassword", mock.Anything, 123, "password12345", "email@email.com").
		Run(func(mock.Arguments) {
			f.clock.Advance(time.Second)
			account.PasswordChangedAt = ptrTime(f.clock.Now())
		}).Return(true, nil)

	token, err := f.tokens.MintResetToken(123, "email@email.com")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	payload := accounts.PasswordResetPayload{Password: "password12345", ConfirmPassword: "password12345"}

	first := finalize(t, f, token, payload)
	assert.Equal(t, accounts.ResetFinalizeUpdated, first.Outcome)
	assert.Equal(t, "email@email.com", first.EmailAddress)

	second := finalize(t, f, token, payload)
	assert.Equal(t, accounts.ResetFinalizeBadToken, second.Outcome)
	assert.Equal(t, accounts.TokenOutcomeExpired, second.Validation.Outcome)

	f.api.AssertNumberOfCalls(t, "UpdateUserPassword", 1)
	assert.Equal(t, []accounts.ActivityEventType{
		accounts.ActivityEventPasswordReset,
		accounts.ActivityEventResetTokenRejected,
	}, f.sink.types())
}

func TestFinalizePasswordReset_ChangeInSameSecond(t *testing.T) {
	payload := accounts.PasswordResetPayload{Password: "password12345", ConfirmPassword: "password12345"}

	setup := func(t *testing.T, opts ...accounts.TokenServiceOption) (*flowFixture, string) {
		f := newFlowFixture(t, opts...)
		account := &apiclient.User{ID: 123, EmailAddress: "email@email.com", Role: accounts.RoleBuyer, Active: true}
		f.api.On("GetUser", mock.Anything, 123).Return(account, nil)
		f.notifier.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.api.On("UpdateUserPassword", mock.Anything, 123, "password12345", "email@email.com").
			Run(func(mock.Arguments) {
				f.clock.Advance(400 * time.Millisecond)
				account.PasswordChangedAt = ptrTime(f.clock.Now())
			}).Return(true, nil)

		token, err := f.tokens.MintResetToken(123, "email@email.com")
		require.NoError(t, err)
		return f, token
	}

	t.Run("without a ledger the same second is not stale", func(t *testing.T) {
		f, token := setup(t)

		assert.Equal(t, accounts.ResetFinalizeUpdated, finalize(t, f, token, payload).Outcome)
		assert.Equal(t, accounts.ResetFinalizeUpdated, finalize(t, f, token, payload).Outcome)
		f.api.AssertNumberOfCalls(t, "UpdateUserPassword", 2)
	})

	t.Run("the ledger rejects the replay", func(t *testing.T) {
		f, token := setup(t, accounts.WithTokenRedeemer(&ledger{used: map[string]int{}}))

		assert.Equal(t, accounts.ResetFinalizeUpdated, finalize(t, f, token, payload).Outcome)
		second := finalize(t, f, token, payload)
		assert.Equal(t, accounts.ResetFinalizeBadToken, second.Outcome)
		f.api.AssertNumberOfCalls(t, "UpdateUserPassword", 1)
	})
}

// ledger is an in-memory Redeemer with the same first-wins contract as the
// sqlite repository.
type ledger struct {
	mu   sync.Mutex
	used map[string]int
}

func (l *ledger) Redeem(_ context.Context, tokenID string, userID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.used[tokenID]; ok {
		return accounts.ErrTokenRedeemed
	}
	l.used[tokenID] = userID
	return nil
}

func (l *ledger) IsRedeemed(_ context.Context, tokenID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.used[tokenID]
	return ok, nil
}

func TestFinalizePasswordReset_ConcurrentSubmissions(t *testing.T) {
	f := newFlowFixture(t, accounts.WithTokenRedeemer(&ledger{used: map[string]int{}}))
	account := &apiclient.User{ID: 5, EmailAddress: "race@example.com", Active: true}
	f.api.On("GetUser", mock.Anything, 5).Return(account, nil)
	f.api.On("UpdateUserPassword", mock.Anything, 5, mock.Anything, mock.Anything).Return(true, nil)
	f.notifier.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	token, err := f.tokens.MintResetToken(5, "race@example.com")
	require.NoError(t, err)

	payload := accounts.PasswordResetPayload{Password: "password12345", ConfirmPassword: "password12345"}

	const workers = 8
	outcomes := make(chan accounts.ResetFinalizeOutcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var res *accounts.FinalizePasswordResetResponse
			_ = accounts.NewFinalizePasswordResetHandler(f.svc).Execute(context.Background(),
				accounts.FinalizePasswordResetMessage{
					Token:      token,
					Payload:    payload,
					OnResponse: func(r *accounts.FinalizePasswordResetResponse) { res = r },
				})
			if res != nil {
				outcomes <- res.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	updated := 0
	for o := range outcomes {
		if o == accounts.ResetFinalizeUpdated {
			updated++
		} else {
			assert.Equal(t, accounts.ResetFinalizeBadToken, o)
		}
	}
	assert.Equal(t, 1, updated)
	f.api.AssertNumberOfCalls(t, "UpdateUserPassword", 1)
}

func TestFinalizePasswordReset_FormAndUpdateErrors(t *testing.T) {
	f := newFlowFixture(t)
	account := &apiclient.User{ID: 8, EmailAddress: "user@example.com", Active: true}
	f.api.On("GetUser", mock.Anything, 8).Return(account, nil)

	token, err := f.tokens.MintResetToken(8, "user@example.com")
	require.NoError(t, err)

	t.Run("blocklisted password", func(t *testing.T) {
		res := finalize(t, f, token, accounts.PasswordResetPayload{Password: "password1234", ConfirmPassword: "password1234"})
		assert.Equal(t, accounts.ResetFinalizeFormError, res.Outcome)
		assert.Equal(t, accounts.MsgPasswordBlocklisted, res.Errors["password"])
	})

	t.Run("update rejected", func(t *testing.T) {
		f.api.On("UpdateUserPassword", mock.Anything, 8, "a-much-better-pass", "user@example.com").Return(false, nil).Once()

		res := finalize(t, f, token, accounts.PasswordResetPayload{Password: "a-much-better-pass", ConfirmPassword: "a-much-better-pass"})
		assert.Equal(t, accounts.ResetFinalizeUpdatedFailed, res.Outcome)
		f.notifier.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("tampered token", func(t *testing.T) {
		res := finalize(t, f, token+"x", accounts.PasswordResetPayload{Password: "a-much-better-pass", ConfirmPassword: "a-much-better-pass"})
		assert.Equal(t, accounts.ResetFinalizeBadToken, res.Outcome)
		assert.Equal(t, accounts.TokenOutcomeInvalid, res.Validation.Outcome)
	})
}
