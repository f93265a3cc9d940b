package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type InitializePasswordResetMessage struct {
	EmailAddress string `json:"email_address" example:"pepe.rone@example.com" doc:"Account email address."`
	OnResponse   func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "account.password_reset.request" }

// InitializePasswordResetResponse reports the branch taken. Path must never
// reach the user: every path renders as the same "sent" outcome.
type InitializePasswordResetResponse struct {
	Outcome ResetRequestOutcome
	Path    ResetRequestPath
}

// InitializePasswordResetHandler handles a "forgot password" request without
// revealing whether the email belongs to an account.
type InitializePasswordResetHandler struct {
	svc Services
}

// NewInitializePasswordResetHandler creates a handler over svc.
func NewInitializePasswordResetHandler(svc Services) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{svc: svc.normalize()}
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := h.svc.withTimeout(ctx)
	defer cancel()

	email := event.EmailAddress
	hash := EmailHash(email)

	account, err := h.svc.API.GetUserByEmail(ctx, email)
	if err != nil {
		h.svc.Logger.Error("password reset account lookup failed", "email_hash", hash, "error", err)
		return dependencyError(err, "failed to look up account for password reset")
	}

	resp := &InitializePasswordResetResponse{Outcome: ResetRequestSent}

	switch {
	case account == nil:
		resp.Path = ResetPathDecoy
		h.sendDecoy(ctx, hash)
		h.svc.Logger.Info("login.reset-email.invalid-email: password reset request for invalid email_hash",
			"code", "login.reset-email.invalid-email", "email_hash", hash)

	case !CanSelfResetPassword(account.Role):
		resp.Path = ResetPathManagerRole
		h.svc.Logger.Info("login.reset-email.manager-role: password reset request for manager role",
			"code", "login.reset-email.manager-role", "email_hash", hash, "role", account.Role)

	case !account.Active:
		resp.Path = ResetPathInactive
		err := h.svc.Notifier.SendEmail(ctx, account.EmailAddress, h.svc.Templates.ResetPasswordInactive, nil,
			NotificationReference(refResetPasswordInactive, account.EmailAddress))
		if err != nil {
			h.svc.Logger.Error("login.reset-email.notify-error: inactive account email failed to send",
				"code", "login.reset-email.notify-error", "email_hash", hash, "error", err)
		}
		h.svc.Logger.Info("login.reset-email.inactive: password reset request for inactive account",
			"code", "login.reset-email.inactive", "email_hash", hash)

	default:
		resp.Path = ResetPathActive
		if err := h.sendResetLink(ctx, account.ID, account.EmailAddress); err != nil {
			h.svc.Logger.Error("login.reset-email.notify-error: password reset email failed to send",
				"code", "login.reset-email.notify-error", "email_hash", hash, "error", err)
			h.svc.record(ctx, ActivityEvent{
				EventType: ActivityEventNotificationFailed,
				UserID:    account.ID,
				EmailHash: hash,
				Metadata:  map[string]any{"template": "reset_password"},
			})
			return goerrors.Wrap(err, ErrNotificationFailed.Category, ErrNotificationFailed.Message).
				WithTextCode(ErrNotificationFailed.TextCode).
				WithCode(ErrNotificationFailed.Code)
		}
		h.svc.Logger.Info("login.reset-email.sent: sending password reset email",
			"code", "login.reset-email.sent", "email_hash", hash)
	}

	var userID int
	if account != nil {
		userID = account.ID
	}
	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventResetRequested,
		UserID:    userID,
		EmailHash: hash,
		Metadata:  map[string]any{"path": string(resp.Path)},
	})

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *InitializePasswordResetHandler) sendResetLink(ctx context.Context, userID int, email string) error {
	token, err := h.svc.Tokens.MintResetToken(userID, email)
	if err != nil {
		return err
	}
	return h.svc.Notifier.SendEmail(ctx, email, h.svc.Templates.ResetPassword,
		map[string]any{"url": h.svc.ResetURL(token)},
		NotificationReference(refResetPassword, email))
}

// sendDecoy sends the reset template to the sandbox address so that the
// unknown email path does the same outbound work as the real one.
func (h *InitializePasswordResetHandler) sendDecoy(ctx context.Context, hash string) {
	if h.svc.DecoyEmail == "" {
		return
	}
	err := h.svc.Notifier.SendEmail(ctx, h.svc.DecoyEmail, h.svc.Templates.ResetPassword,
		map[string]any{"url": h.svc.ResetURL(uuid.NewString())},
		NotificationReference(refResetPassword, h.svc.DecoyEmail))
	if err != nil {
		h.svc.Logger.Warn("password reset decoy email failed to send", "email_hash", hash, "error", err)
	}
}
