package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

type ChangePasswordMessage struct {
	User       *SessionUser          `json:"user"`
	Payload    PasswordChangePayload `json:"payload"`
	OnResponse func(resp *ChangePasswordResponse)
}

func (p ChangePasswordMessage) Type() string { return "account.password.change" }

type ChangePasswordResponse struct {
	Outcome ChangePasswordOutcome
	Errors  map[string]string
}

// ChangePasswordHandler changes the password of a logged in user. Field
// shape is validated first; the old password is then checked remotely.
type ChangePasswordHandler struct {
	svc Services
}

// NewChangePasswordHandler creates a handler over svc.
func NewChangePasswordHandler(svc Services) *ChangePasswordHandler {
	return &ChangePasswordHandler{svc: svc.normalize()}
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	if event.User == nil {
		return ErrUnableToFindSession
	}

	ctx, cancel := h.svc.withTimeout(ctx)
	defer cancel()

	resp := &ChangePasswordResponse{}
	respond := func(outcome ChangePasswordOutcome) error {
		resp.Outcome = outcome
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	user := event.User
	hash := EmailHash(user.EmailAddress)

	if err := event.Payload.Validate(h.svc.Policy); err != nil {
		resp.Errors = FormatValidationErrorToMap(err)
		return respond(ChangePasswordFormError)
	}

	current, err := h.svc.API.AuthenticateUser(ctx, user.EmailAddress, event.Payload.OldPassword)
	if err != nil {
		return dependencyError(err, "failed to verify current password")
	}
	if current == nil {
		h.svc.Logger.Info("change_password.fail: failed to authenticate user",
			"code", "change_password.fail", "email_hash", hash)
		resp.Errors = map[string]string{"old_password": MsgOldPasswordWrong}
		return respond(ChangePasswordWrongOld)
	}

	ok, err := h.svc.API.UpdateUserPassword(ctx, user.ID, event.Payload.Password, user.EmailAddress)
	if err != nil || !ok {
		h.svc.Logger.Error("password change update failed", "user_id", user.ID, "error", err)
		return respond(ChangePasswordUpdateError)
	}

	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		UserID:    user.ID,
		EmailHash: hash,
	})
	h.svc.sendPasswordChangedAlert(ctx, user.ID, user.EmailAddress)

	return respond(ChangePasswordUpdated)
}
