package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// UserResearchFieldName is the data API field holding the opt-in flag.
const UserResearchFieldName = "userResearchOptedIn"

// MsgPreferenceSaved is flashed after the preference was stored.
const MsgPreferenceSaved = "Your preference has been saved"

type UpdateUserResearchMessage struct {
	User    *SessionUser        `json:"user"`
	Payload UserResearchPayload `json:"payload"`
}

func (p UpdateUserResearchMessage) Type() string { return "account.preference.user_research" }

// UpdateUserResearchHandler stores the user research opt-in flag.
type UpdateUserResearchHandler struct {
	svc Services
}

func NewUpdateUserResearchHandler(svc Services) *UpdateUserResearchHandler {
	return &UpdateUserResearchHandler{svc: svc.normalize()}
}

func (h *UpdateUserResearchHandler) Execute(ctx context.Context, event UpdateUserResearchMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during preference update",
		)
	default:
	}

	if event.User == nil {
		return ErrUnableToFindSession
	}

	ctx, cancel := h.svc.withTimeout(ctx)
	defer cancel()

	fields := map[string]any{UserResearchFieldName: event.Payload.UserResearchOptIn}
	if err := h.svc.API.UpdateUser(ctx, event.User.ID, fields, event.User.EmailAddress); err != nil {
		return dependencyError(err, "failed to save user research preference")
	}

	h.svc.record(ctx, ActivityEvent{
		EventType: ActivityEventPreferenceUpdated,
		UserID:    event.User.ID,
		EmailHash: EmailHash(event.User.EmailAddress),
		Metadata:  map[string]any{UserResearchFieldName: event.Payload.UserResearchOptIn},
	})
	return nil
}

// UserResearchOptedIn reads the current flag for user.
func (s Services) UserResearchOptedIn(ctx context.Context, userID int) (bool, error) {
	s = s.normalize()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	account, err := s.API.GetUser(ctx, userID)
	if err != nil {
		return false, dependencyError(err, "failed to load user")
	}
	if account == nil {
		return false, ErrUnableToFindSession
	}
	return account.UserResearchOptedIn, nil
}
