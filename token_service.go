package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TokenServiceConfig holds the signing material for both token namespaces.
type TokenServiceConfig struct {
	SharedKey         string
	ResetPasswordSalt string
	InviteEmailSalt   string
	ResetTokenTTL     time.Duration
	InviteTokenTTL    time.Duration
}

// TokenService mints and validates reset and invitation tokens.
type TokenService struct {
	reset      *TokenCodec
	invite     *TokenCodec
	redeemer   Redeemer
	validators map[TokenPurpose]TokenValidator
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*tokenServiceOptions)

type tokenServiceOptions struct {
	clock    func() time.Time
	redeemer Redeemer
	logger   Logger
}

// WithTokenClock overrides the clock of both codecs.
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(o *tokenServiceOptions) { o.clock = now }
}

// WithTokenRedeemer enables the consume-once ledger for reset tokens.
func WithTokenRedeemer(r Redeemer) TokenServiceOption {
	return func(o *tokenServiceOptions) { o.redeemer = r }
}

// WithTokenLogger sets the logger used during validation.
func WithTokenLogger(l Logger) TokenServiceOption {
	return func(o *tokenServiceOptions) { o.logger = l }
}

// NewTokenService creates a TokenService backed by api for reset token checks.
func NewTokenService(cfg TokenServiceConfig, api AccountAPI, opts ...TokenServiceOption) (*TokenService, error) {
	if api == nil {
		return nil, goerrors.New("account api is required", goerrors.CategoryBadInput)
	}
	if cfg.ResetPasswordSalt == cfg.InviteEmailSalt {
		return nil, goerrors.New("reset and invitation salts must differ", goerrors.CategoryBadInput)
	}

	o := &tokenServiceOptions{}
	for _, opt := range opts {
		opt(o)
	}

	reset, err := NewTokenCodec(cfg.SharedKey, cfg.ResetPasswordSalt, cfg.ResetTokenTTL, WithCodecClock(o.clock))
	if err != nil {
		return nil, err
	}

	invite, err := NewTokenCodec(cfg.SharedKey, cfg.InviteEmailSalt, cfg.InviteTokenTTL, WithCodecClock(o.clock))
	if err != nil {
		return nil, err
	}

	return &TokenService{
		reset:    reset,
		invite:   invite,
		redeemer: normalizeRedeemer(o.redeemer),
		validators: map[TokenPurpose]TokenValidator{
			PurposeResetPassword: NewResetTokenValidator(reset, api, o.redeemer, o.logger),
			PurposeCreateUser:    NewInvitationTokenValidator(invite),
		},
	}, nil
}

// MintResetToken issues a password reset token.
func (s *TokenService) MintResetToken(userID int, email string) (string, error) {
	return MintResetToken(s.reset, ResetClaims{UserID: userID, EmailAddress: email})
}

// MintInvitationToken issues an account creation token.
func (s *TokenService) MintInvitationToken(inv Invitation) (string, error) {
	return MintInvitationToken(s.invite, inv)
}

// Validate checks token for purpose.
func (s *TokenService) Validate(ctx context.Context, purpose TokenPurpose, token string) TokenValidation {
	v, ok := s.validators[purpose]
	if !ok {
		return TokenValidation{
			Purpose: purpose,
			Outcome: TokenOutcomeInvalid,
			Err: goerrors.New("unknown token purpose", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"purpose": purpose}),
		}
	}
	return v.Validate(ctx, token)
}

// Redeem marks a reset token as consumed. Without a ledger it always succeeds.
func (s *TokenService) Redeem(ctx context.Context, tokenID string, userID int) error {
	if tokenID == "" {
		return nil
	}
	return s.redeemer.Redeem(ctx, tokenID, userID)
}

// ResetTokenTTL returns the reset token lifetime.
func (s *TokenService) ResetTokenTTL() time.Duration {
	return s.reset.MaxAge()
}
