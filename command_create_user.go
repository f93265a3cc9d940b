package accounts

import (
	"context"
	"errors"

	"github.com/goliatone/go-accounts-web/apiclient"
	goerrors "github.com/goliatone/go-errors"
)

type CreateUserMessage struct {
	Token      string            `json:"token" doc:"Invitation token from the emailed link"`
	Payload    CreateUserPayload `json:"payload"`
	OnResponse func(resp *CreateUserResponse)
}

func (p CreateUserMessage) Type() string { return "account.create" }

type CreateUserResponse struct {
	Outcome    CreateUserOutcome
	Invitation Invitation
	Validation TokenValidation
	Errors     map[string]string
	// APIError is the data API message for create_failed.
	APIError string
	User     *apiclient.User
}

// CreateUserHandler creates an account from an invitation.
type CreateUserHandler struct {
	svc Services
}

// NewCreateUserHandler creates a handler over svc.
func NewCreateUserHandler(svc Services) *CreateUserHandler {
	return &CreateUserHandler{svc: svc.normalize()}
}

func (h *CreateUserHandler) Execute(ctx context.Context, event CreateUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateUserHandler) execute(ctx context.Context, event CreateUserMessage) error {
	ctx, cancel := h.svc.withTimeout(ctx)
	defer cancel()

	inv := decodeInvitation(ctx, h.svc, event.Token)
	resp := &CreateUserResponse{
		Outcome:    inv.Outcome,
		Invitation: inv.Invitation,
		Validation: inv.Validation,
	}
	respond := func(outcome CreateUserOutcome) error {
		resp.Outcome = outcome
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	if resp.Outcome != "" {
		return respond(resp.Outcome)
	}

	payload := event.Payload
	payload.Normalize()

	if err := payload.Validate(h.svc.Policy); err != nil {
		resp.Errors = FormatValidationErrorToMap(err)
		h.svc.Logger.Warn("createuser.invalid: account creation form invalid",
			"code", "createuser.invalid", "fields", ErrorFields(resp.Errors))
		return respond(CreateUserFormError)
	}

	req := apiclient.CreateUserRequest{
		Name:         payload.Name,
		Password:     payload.Password,
		EmailAddress: resp.Invitation.EmailAddress,
		Role:         resp.Invitation.Role,
	}
	switch resp.Invitation.Role {
	case RoleBuyer:
		req.PhoneNumber = payload.PhoneNumber
	case RoleSupplier:
		req.SupplierID = resp.Invitation.SupplierID
	}

	user, err := h.svc.API.CreateUser(ctx, req)
	if err != nil {
		var httpErr *apiclient.HTTPError
		if errors.As(err, &httpErr) && (httpErr.IsConflict() || httpErr.IsInvalidBuyerDomain()) {
			resp.APIError = httpErr.Message
			h.svc.Logger.Warn("account creation rejected", "status", httpErr.StatusCode,
				"message", httpErr.Message, "email_hash", EmailHash(req.EmailAddress))
			return respond(CreateUserCreateFailed)
		}
		h.svc.Logger.Error("account creation failed", "email_hash", EmailHash(req.EmailAddress), "error", err)
		resp.Outcome = CreateUserServiceUnavailable
		return dependencyError(err, "failed to create account")
	}

	resp.User = user
	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountCreated,
		UserID:    user.ID,
		EmailHash: EmailHash(user.EmailAddress),
		Metadata:  map[string]any{"role": user.Role},
	})

	return respond(CreateUserCreated)
}

// CreateUserError maps a create_failed API message to the taxonomy error.
func CreateUserError(apiMessage string) error {
	if (&apiclient.HTTPError{Message: apiMessage}).IsInvalidBuyerDomain() {
		return ErrInvalidBuyerDomain
	}
	return ErrAccountConflict
}
