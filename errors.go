package accounts

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed        = "TOKEN_MALFORMED"
	TextCodeTokenSignatureInvalid = "TOKEN_SIGNATURE_INVALID"
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeTokenStale            = "TOKEN_STALE"
	TextCodeTokenRedeemed         = "TOKEN_ALREADY_USED"
	TextCodeValidation            = "VALIDATION_ERROR"
	TextCodeAccountConflict       = "ACCOUNT_CONFLICT"
	TextCodeInvalidBuyerDomain    = "INVALID_BUYER_DOMAIN"
	TextCodeAccountExists         = "ACCOUNT_EXISTS"
	TextCodeAccountLocked         = "ACCOUNT_LOCKED"
	TextCodeAccountInactive       = "ACCOUNT_INACTIVE"
	TextCodeWrongSupplier         = "ACCOUNT_WRONG_SUPPLIER"
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	TextCodeDependency            = "DEPENDENCY_UNAVAILABLE"
	TextCodeNotificationFailed    = "NOTIFICATION_FAILED"
	TextCodeSessionNotFound       = "SESSION_NOT_FOUND"
)

// ErrTokenMalformed is returned when a token cannot be parsed.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenSignatureInvalid is returned when the signature does not verify,
// which includes tokens minted under a different namespace.
var ErrTokenSignatureInvalid = goerrors.New("token signature is invalid", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenSignatureInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned when the token is older than its max age.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenStale is returned when the account password changed after the token was minted.
var ErrTokenStale = goerrors.New("token predates the last password change", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenStale).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenRedeemed is returned when a reset token was already consumed.
var ErrTokenRedeemed = goerrors.New("token has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenRedeemed).
	WithCode(goerrors.CodeConflict)

// ErrValidation wraps per-field form errors.
var ErrValidation = goerrors.New("form validation failed", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountConflict is returned when the API reports the account already exists.
var ErrAccountConflict = goerrors.New("account already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeAccountConflict).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidBuyerDomain is returned when a buyer email domain is not allowed.
var ErrInvalidBuyerDomain = goerrors.New("invalid_buyer_domain", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidBuyerDomain).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountExists is returned when an invitation targets an existing account.
var ErrAccountExists = goerrors.New("an account already exists for this email", goerrors.CategoryConflict).
	WithTextCode(TextCodeAccountExists).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountLocked is returned when the existing account is locked.
var ErrAccountLocked = goerrors.New("account is locked", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountInactive is returned when the existing account is deactivated.
var ErrAccountInactive = goerrors.New("account is inactive", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeBadRequest)

// ErrWrongSupplier is returned when the account belongs to another supplier.
var ErrWrongSupplier = goerrors.New("account belongs to a different supplier", goerrors.CategoryConflict).
	WithTextCode(TextCodeWrongSupplier).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned when the API rejects an email/password pair.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(http.StatusForbidden)

// ErrDependencyUnavailable is returned when the account API fails.
var ErrDependencyUnavailable = goerrors.New("account service unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeDependency).
	WithCode(http.StatusServiceUnavailable)

// ErrNotificationFailed is returned when a primary notification could not be sent.
var ErrNotificationFailed = goerrors.New("Failed to send password reset.", goerrors.CategoryOperation).
	WithTextCode(TextCodeNotificationFailed).
	WithCode(http.StatusServiceUnavailable)

// ErrUnableToFindSession is returned when a protected route has no logged in user.
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

// IsTokenExpiredError reports whether err means the token should be shown as expired.
func IsTokenExpiredError(err error) bool {
	return HasTextCode(err, TextCodeTokenExpired, TextCodeTokenStale, TextCodeTokenRedeemed)
}

// IsMalformedError reports whether err means the token is not usable at all.
func IsMalformedError(err error) bool {
	return HasTextCode(err, TextCodeTokenMalformed, TextCodeTokenSignatureInvalid)
}

// HasTextCode reports whether err is a rich error carrying one of codes.
func HasTextCode(err error, codes ...string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	for _, code := range codes {
		if richErr.TextCode == code {
			return true
		}
	}
	return false
}

// dependencyError wraps a collaborator failure as ErrDependencyUnavailable.
func dependencyError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code == http.StatusServiceUnavailable {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
		WithTextCode(TextCodeDependency).
		WithCode(http.StatusServiceUnavailable)
}
