package accounts

import (
	"fmt"
	"strconv"

	"github.com/goliatone/go-accounts-web/apiclient"
)

// Invitation is the claim set carried by an account creation token.
type Invitation struct {
	Role         UserRole
	EmailAddress string
	SupplierID   int
	SupplierName string
	PhoneNumber  string
}

// Claims renders the invitation as a token claim map.
func (i Invitation) Claims() map[string]any {
	claims := map[string]any{
		"role":          i.Role,
		"email_address": i.EmailAddress,
	}
	if i.SupplierID != 0 {
		claims["supplier_id"] = i.SupplierID
	}
	if i.SupplierName != "" {
		claims["supplier_name"] = i.SupplierName
	}
	if i.PhoneNumber != "" {
		claims["phone_number"] = i.PhoneNumber
	}
	return claims
}

// InvitationFromClaims reads an invitation back from decoded claims.
func InvitationFromClaims(claims map[string]any) Invitation {
	inv := Invitation{Role: InvitationRole(claims)}
	inv.EmailAddress, _ = claims["email_address"].(string)
	inv.SupplierName, _ = claims["supplier_name"].(string)
	inv.PhoneNumber, _ = claims["phone_number"].(string)
	inv.SupplierID, _ = claimInt(claims["supplier_id"])
	return inv
}

// ResetClaims is the claim set carried by a password reset token.
type ResetClaims struct {
	UserID       int
	EmailAddress string
}

// Claims renders the reset claims as a token claim map.
func (r ResetClaims) Claims() map[string]any {
	return map[string]any{
		"user":  r.UserID,
		"email": r.EmailAddress,
	}
}

// claimInt accepts numeric claims and numeric strings, older invitations
// carry the supplier id as a string.
func claimInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

// ResetRequestOutcome is the terminal state of a reset request.
type ResetRequestOutcome string

const (
	ResetRequestSent         ResetRequestOutcome = "sent"
	ResetRequestFormError    ResetRequestOutcome = "form_error"
	ResetRequestNotifyFailed ResetRequestOutcome = "notify_failed"
)

// ResetRequestPath records which branch handled a reset request. It only
// ever reaches logs and activity events, never the response.
type ResetRequestPath string

const (
	ResetPathDecoy       ResetRequestPath = "decoy"
	ResetPathManagerRole ResetRequestPath = "manager_role"
	ResetPathInactive    ResetRequestPath = "inactive"
	ResetPathActive      ResetRequestPath = "active"
)

// ResetFinalizeOutcome is the terminal state of a reset token consumption.
type ResetFinalizeOutcome string

const (
	ResetFinalizeBadToken      ResetFinalizeOutcome = "bad_token"
	ResetFinalizeFormError     ResetFinalizeOutcome = "form_error"
	ResetFinalizeUpdated       ResetFinalizeOutcome = "updated"
	ResetFinalizeUpdatedFailed ResetFinalizeOutcome = "updated_failed"
)

// CreateUserOutcome is the terminal state of the account creation flow.
type CreateUserOutcome string

const (
	CreateUserBadToken           CreateUserOutcome = "bad_token"
	CreateUserExpired            CreateUserOutcome = "expired"
	CreateUserAlreadyExists      CreateUserOutcome = "already_exists"
	CreateUserWrongSupplier      CreateUserOutcome = "wrong_supplier"
	CreateUserReady              CreateUserOutcome = "ready"
	CreateUserFormError          CreateUserOutcome = "form_error"
	CreateUserCreateFailed       CreateUserOutcome = "create_failed"
	CreateUserServiceUnavailable CreateUserOutcome = "service_unavailable"
	CreateUserCreated            CreateUserOutcome = "created"
)

// ExistingAccountReason explains why an invitation cannot be used because
// an account already exists for its email.
type ExistingAccountReason string

const (
	ExistingAccountLocked   ExistingAccountReason = "locked"
	ExistingAccountInactive ExistingAccountReason = "inactive"
	// ExistingAccountSupplier means a buyer invite hit a supplier account.
	ExistingAccountSupplier ExistingAccountReason = "supplier"
	ExistingAccountExists   ExistingAccountReason = "exists"
)

// ChangePasswordOutcome is the terminal state of an authenticated password change.
type ChangePasswordOutcome string

const (
	ChangePasswordFormError   ChangePasswordOutcome = "form_error"
	ChangePasswordWrongOld    ChangePasswordOutcome = "wrong_old_password"
	ChangePasswordUpdated     ChangePasswordOutcome = "updated"
	ChangePasswordUpdateError ChangePasswordOutcome = "updated_failed"
)

// SessionUser is the identity stored in the session after login.
type SessionUser struct {
	ID           int    `json:"id"`
	EmailAddress string `json:"email_address"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	SupplierID   int    `json:"supplier_id,omitempty"`
	SupplierName string `json:"supplier_name,omitempty"`
}

// NewSessionUser projects an API user into the session identity.
func NewSessionUser(u *apiclient.User) *SessionUser {
	if u == nil {
		return nil
	}
	su := &SessionUser{
		ID:           u.ID,
		EmailAddress: u.EmailAddress,
		Name:         u.Name,
		Role:         u.Role,
	}
	if u.Supplier != nil {
		su.SupplierID = u.Supplier.SupplierID
		su.SupplierName = u.Supplier.Name
	}
	return su
}

func (u *SessionUser) String() string {
	if u == nil {
		return "<anonymous>"
	}
	return fmt.Sprintf("user:%d role:%s", u.ID, u.Role)
}
