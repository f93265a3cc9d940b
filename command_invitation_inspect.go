package accounts

import (
	"context"

	"github.com/goliatone/go-accounts-web/apiclient"
	goerrors "github.com/goliatone/go-errors"
)

type InspectInvitationMessage struct {
	Token      string `json:"token" doc:"Invitation token from the emailed link"`
	OnResponse func(resp *InvitationResponse)
}

func (p InspectInvitationMessage) Type() string { return "account.invitation.inspect" }

// InvitationResponse describes an invitation and, when one exists, the
// account already registered under its email.
type InvitationResponse struct {
	Outcome    CreateUserOutcome
	Validation TokenValidation
	Invitation Invitation
	Existing   *apiclient.User
	Reason     ExistingAccountReason
}

// InspectInvitationHandler decides whether an invitation can still be used
// to create an account.
type InspectInvitationHandler struct {
	svc Services
}

// NewInspectInvitationHandler creates a handler over svc.
func NewInspectInvitationHandler(svc Services) *InspectInvitationHandler {
	return &InspectInvitationHandler{svc: svc.normalize()}
}

func (h *InspectInvitationHandler) Execute(ctx context.Context, event InspectInvitationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invitation inspection",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InspectInvitationHandler) execute(ctx context.Context, event InspectInvitationMessage) error {
	ctx, cancel := h.svc.withTimeout(ctx)
	defer cancel()

	resp := decodeInvitation(ctx, h.svc, event.Token)
	if resp.Outcome == "" {
		account, err := h.svc.API.GetUserByEmail(ctx, resp.Invitation.EmailAddress)
		if err != nil {
			return dependencyError(err, "failed to look up invited account")
		}
		resp.Existing = account
		resp.Outcome, resp.Reason = classifyExistingAccount(resp.Invitation, account)
	}

	if resp.Outcome != CreateUserReady {
		h.svc.record(ctx, ActivityEvent{
			EventType: ActivityEventInvitationRejected,
			EmailHash: EmailHash(resp.Invitation.EmailAddress),
			Metadata: map[string]any{
				"outcome": string(resp.Outcome),
				"reason":  string(resp.Reason),
				"role":    resp.Invitation.Role,
			},
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

// decodeInvitation validates the token and leaves Outcome empty when the
// invitation is usable.
func decodeInvitation(ctx context.Context, svc Services, token string) *InvitationResponse {
	resp := &InvitationResponse{}
	resp.Validation = svc.Tokens.Validate(ctx, PurposeCreateUser, token)

	if resp.Validation.Token != nil {
		resp.Invitation = InvitationFromClaims(resp.Validation.Token.Claims)
	}

	switch resp.Validation.Outcome {
	case TokenOutcomeInvalid:
		svc.Logger.Warn("createuser.token_invalid: invalid invitation token",
			"code", "createuser.token_invalid", "error", resp.Validation.Err)
		resp.Outcome = CreateUserBadToken
	case TokenOutcomeExpired:
		svc.Logger.Warn("createuser.token_expired: expired invitation token",
			"code", "createuser.token_expired", "role", resp.Invitation.Role)
		resp.Outcome = CreateUserExpired
	default:
		if resp.Invitation.Role != RoleBuyer && resp.Invitation.Role != RoleSupplier {
			svc.Logger.Warn("createuser.token_invalid: unsupported invitation role",
				"code", "createuser.token_invalid", "role", resp.Invitation.Role)
			resp.Outcome = CreateUserBadToken
		}
	}
	return resp
}

// classifyExistingAccount maps an existing account to the outcome for inv.
// Locked and inactive accounts take precedence over role checks.
func classifyExistingAccount(inv Invitation, account *apiclient.User) (CreateUserOutcome, ExistingAccountReason) {
	switch {
	case account == nil:
		return CreateUserReady, ""
	case account.Locked:
		return CreateUserAlreadyExists, ExistingAccountLocked
	case !account.Active:
		return CreateUserAlreadyExists, ExistingAccountInactive
	}

	if inv.Role == RoleSupplier {
		if account.Role == RoleSupplier && account.SupplierID() != inv.SupplierID {
			return CreateUserWrongSupplier, ""
		}
		return CreateUserAlreadyExists, ExistingAccountExists
	}

	if account.Role == RoleSupplier {
		return CreateUserAlreadyExists, ExistingAccountSupplier
	}
	return CreateUserAlreadyExists, ExistingAccountExists
}
