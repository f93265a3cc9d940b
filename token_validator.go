package accounts

import (
	"context"

	"github.com/goliatone/go-accounts-web/apiclient"
)

// TokenPurpose selects the namespace and validation rules of a token.
type TokenPurpose string

const (
	PurposeResetPassword TokenPurpose = "reset_password"
	PurposeCreateUser    TokenPurpose = "create_user"
)

// TokenOutcome is the collapsed, user visible result of a failed validation.
// Malformed and wrongly signed tokens are indistinguishable to the user.
type TokenOutcome string

const (
	TokenOutcomeValid   TokenOutcome = ""
	TokenOutcomeInvalid TokenOutcome = "token_invalid"
	TokenOutcomeExpired TokenOutcome = "token_expired"
)

// TokenValidation is the result of validating a token for one purpose.
// Token is set whenever the signature verified, including expired tokens.
// Err keeps the precise cause for logs.
type TokenValidation struct {
	Purpose TokenPurpose
	Outcome TokenOutcome
	Token   *DecodedToken
	Account *apiclient.User
	Err     error
}

// Valid reports whether the token may be acted on.
func (v TokenValidation) Valid() bool {
	return v.Outcome == TokenOutcomeValid
}

// TokenValidator validates tokens for a single purpose.
type TokenValidator interface {
	Validate(ctx context.Context, token string) TokenValidation
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(ctx context.Context, token string) TokenValidation

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(ctx context.Context, token string) TokenValidation {
	if f == nil {
		return TokenValidation{Outcome: TokenOutcomeInvalid, Err: ErrTokenMalformed}
	}
	return f(ctx, token)
}

// outcomeFor collapses a codec or staleness error into the visible outcome.
func outcomeFor(err error) TokenOutcome {
	switch {
	case err == nil:
		return TokenOutcomeValid
	case IsTokenExpiredError(err):
		return TokenOutcomeExpired
	default:
		return TokenOutcomeInvalid
	}
}

// ResetTokenValidator validates password reset tokens against the live
// account: the account must still exist, the token must postdate its last
// password change and, when a ledger is configured, must not be redeemed.
type ResetTokenValidator struct {
	codec    *TokenCodec
	api      AccountAPI
	redeemer Redeemer
	logger   Logger
}

// NewResetTokenValidator creates a validator. redeemer may be nil.
func NewResetTokenValidator(codec *TokenCodec, api AccountAPI, redeemer Redeemer, logger Logger) *ResetTokenValidator {
	return &ResetTokenValidator{
		codec:    codec,
		api:      api,
		redeemer: normalizeRedeemer(redeemer),
		logger:   normalizeLogger(logger),
	}
}

// Validate satisfies the TokenValidator interface.
func (v *ResetTokenValidator) Validate(ctx context.Context, token string) TokenValidation {
	res := TokenValidation{Purpose: PurposeResetPassword}

	decoded, err := v.codec.Decode(token)
	res.Token = decoded
	if err != nil {
		res.Err = err
		res.Outcome = outcomeFor(err)
		return res
	}

	userID, ok := decoded.Int("user")
	if !ok {
		res.Err = ErrTokenMalformed
		res.Outcome = TokenOutcomeInvalid
		return res
	}

	account, err := v.api.GetUser(ctx, userID)
	if err != nil {
		v.logger.Error("reset token account lookup failed", "user_id", userID, "error", err)
		res.Err = dependencyError(err, "failed to load account for reset token")
		res.Outcome = TokenOutcomeInvalid
		return res
	}
	if account == nil {
		res.Err = ErrTokenMalformed
		res.Outcome = TokenOutcomeInvalid
		return res
	}
	res.Account = account

	if IsStale(decoded.IssuedAt, account.PasswordChangedAt) {
		res.Err = ErrTokenStale
		res.Outcome = TokenOutcomeExpired
		return res
	}

	if decoded.ID != "" {
		redeemed, err := v.redeemer.IsRedeemed(ctx, decoded.ID)
		if err != nil {
			v.logger.Warn("reset token ledger lookup failed", "user_id", userID, "error", err)
		} else if redeemed {
			res.Err = ErrTokenRedeemed
			res.Outcome = TokenOutcomeExpired
			return res
		}
	}

	return res
}

// InvitationTokenValidator validates account creation tokens. There is no
// server side staleness check: an invitation is spent once its account exists.
type InvitationTokenValidator struct {
	codec *TokenCodec
}

// NewInvitationTokenValidator creates a validator bound to codec.
func NewInvitationTokenValidator(codec *TokenCodec) *InvitationTokenValidator {
	return &InvitationTokenValidator{codec: codec}
}

// Validate satisfies the TokenValidator interface.
func (v *InvitationTokenValidator) Validate(_ context.Context, token string) TokenValidation {
	res := TokenValidation{Purpose: PurposeCreateUser}

	decoded, err := v.codec.Decode(token)
	res.Token = decoded
	if err != nil {
		res.Err = err
		res.Outcome = outcomeFor(err)
		return res
	}

	if email, ok := decoded.String("email_address"); !ok || email == "" {
		res.Err = ErrTokenMalformed
		res.Outcome = TokenOutcomeInvalid
	}
	return res
}
