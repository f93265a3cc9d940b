package accounts

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// MintResetToken issues a password reset token for the given account.
func MintResetToken(codec *TokenCodec, claims ResetClaims) (string, error) {
	if codec == nil {
		return "", goerrors.New("token codec is required", goerrors.CategoryBadInput)
	}
	if claims.UserID == 0 {
		return "", goerrors.New("user id is required", goerrors.CategoryBadInput)
	}
	return codec.Encode(claims.Claims())
}

// MintInvitationToken issues an account creation token. Supplier
// invitations must carry the supplier they were issued by.
func MintInvitationToken(codec *TokenCodec, inv Invitation) (string, error) {
	if codec == nil {
		return "", goerrors.New("token codec is required", goerrors.CategoryBadInput)
	}
	if strings.TrimSpace(inv.EmailAddress) == "" {
		return "", goerrors.New("invitation email is required", goerrors.CategoryBadInput)
	}
	if inv.Role == "" {
		inv.Role = RoleBuyer
	}
	if inv.Role == RoleSupplier && inv.SupplierID == 0 {
		return "", goerrors.New("supplier invitations require a supplier id", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"role": inv.Role})
	}
	return codec.Encode(inv.Claims())
}
