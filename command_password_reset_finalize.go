package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Token      string               `json:"token" doc:"Reset password token from the emailed link"`
	Payload    PasswordResetPayload `json:"payload"`
	OnResponse func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

type FinalizePasswordResetResponse struct {
	Outcome      ResetFinalizeOutcome
	Validation   TokenValidation
	EmailAddress string
	Errors       map[string]string
}

// FinalizePasswordResetHandler consumes a reset token and sets the new password.
type FinalizePasswordResetHandler struct {
	svc Services
}

// NewFinalizePasswordResetHandler creates a handler over svc.
func NewFinalizePasswordResetHandler(svc Services) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{svc: svc.normalize()}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.svc.Activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.svc.Logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := h.svc.withTimeout(ctx)
	defer cancel()

	resp := &FinalizePasswordResetResponse{}
	respond := func(outcome ResetFinalizeOutcome) error {
		resp.Outcome = outcome
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	resp.Validation = h.svc.Tokens.Validate(ctx, PurposeResetPassword, event.Token)
	if !resp.Validation.Valid() {
		h.rejectToken(ctx, resp.Validation)
		return respond(ResetFinalizeBadToken)
	}

	account := resp.Validation.Account
	resp.EmailAddress = account.EmailAddress
	if resp.EmailAddress == "" {
		resp.EmailAddress, _ = resp.Validation.Token.String("email")
	}

	if err := event.Payload.Validate(h.svc.Policy); err != nil {
		resp.Errors = FormatValidationErrorToMap(err)
		return respond(ResetFinalizeFormError)
	}

	// claim the token before the irreversible call so a concurrent
	// submission of the same link loses
	if err := h.svc.Tokens.Redeem(ctx, resp.Validation.Token.ID, account.ID); err != nil {
		if HasTextCode(err, TextCodeTokenRedeemed) {
			resp.Validation.Outcome = TokenOutcomeExpired
			resp.Validation.Err = err
			h.rejectToken(ctx, resp.Validation)
			return respond(ResetFinalizeBadToken)
		}
		h.svc.Logger.Error("reset token could not be redeemed", "user_id", account.ID, "error", err)
		return respond(ResetFinalizeUpdatedFailed)
	}

	ok, err := h.svc.API.UpdateUserPassword(ctx, account.ID, event.Payload.Password, resp.EmailAddress)
	if err != nil || !ok {
		h.svc.Logger.Error("password reset update failed", "user_id", account.ID, "error", err)
		return respond(ResetFinalizeUpdatedFailed)
	}

	h.svc.Logger.Info("user successfully changed their password", "user_id", account.ID)
	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		UserID:    account.ID,
		EmailHash: EmailHash(resp.EmailAddress),
		Metadata:  map[string]any{"token_id": resp.Validation.Token.ID},
	})

	h.svc.sendPasswordChangedAlert(ctx, account.ID, resp.EmailAddress)

	return respond(ResetFinalizeUpdated)
}

func (h *FinalizePasswordResetHandler) rejectToken(ctx context.Context, v TokenValidation) {
	userID := 0
	if v.Account != nil {
		userID = v.Account.ID
	}
	h.svc.Logger.Info("password reset token rejected", "outcome", v.Outcome, "user_id", userID, "error", v.Err)
	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventResetTokenRejected,
		UserID:    userID,
		Metadata:  map[string]any{"outcome": string(v.Outcome)},
	})
}
