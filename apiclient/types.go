package apiclient

import (
	"fmt"
	"strings"
	"time"
)

// User is the account snapshot returned by the data API.
type User struct {
	ID                  int        `json:"id"`
	EmailAddress        string     `json:"emailAddress"`
	Name                string     `json:"name"`
	Role                string     `json:"role"`
	Active              bool       `json:"active"`
	Locked              bool       `json:"locked"`
	PhoneNumber         string     `json:"phoneNumber,omitempty"`
	PasswordChangedAt   *time.Time `json:"passwordChangedAt,omitempty"`
	UserResearchOptedIn bool       `json:"userResearchOptedIn"`
	Supplier            *Supplier  `json:"supplier,omitempty"`
}

// Supplier is the supplier affiliation of a supplier user.
type Supplier struct {
	SupplierID int    `json:"supplierId"`
	Name       string `json:"name"`
}

// SupplierID returns the affiliated supplier id or zero.
func (u *User) SupplierID() int {
	if u == nil || u.Supplier == nil {
		return 0
	}
	return u.Supplier.SupplierID
}

// CreateUserRequest is the payload accepted by the create user endpoint.
type CreateUserRequest struct {
	Name         string `json:"name"`
	Password     string `json:"password"`
	EmailAddress string `json:"emailAddress"`
	Role         string `json:"role"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	SupplierID   int    `json:"supplierId,omitempty"`
}

// HTTPError is returned for non 2xx API responses.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("data api responded %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether the API rejected a duplicate record.
func (e *HTTPError) IsConflict() bool {
	return e != nil && e.StatusCode == 409
}

// IsInvalidBuyerDomain reports whether the API rejected a buyer email domain.
func (e *HTTPError) IsInvalidBuyerDomain() bool {
	return e != nil && strings.EqualFold(e.Message, "invalid_buyer_domain")
}

type usersEnvelope struct {
	Users *User `json:"users"`
}

type errorEnvelope struct {
	Error any `json:"error"`
}
