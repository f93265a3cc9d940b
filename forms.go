package accounts

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// EmailRegex accepts one @, no whitespace and at least one dot in the domain.
var EmailRegex = regexp.MustCompile(`^[^@^\s]+@[^@^\.^\s]+(\.[^@^\.^\s]+)+$`)

// PhoneRegex accepts an empty value or 9 to 20 digits, spaces, brackets and dashes.
var PhoneRegex = regexp.MustCompile(`^$|^\+?([\d\s()-]){9,20}$`)

const (
	MsgEmailRequired    = "You must provide an email address"
	MsgEmailInvalid     = "You must provide a valid email address"
	MsgPasswordRequired = "You must provide your password"
	MsgOldPassword      = "You must enter your old password"
	MsgOldPasswordWrong = "Make sure you’ve entered the right password."
	MsgNewPassword      = "You must enter a new password"
	MsgCreatePassword   = "You must enter a password"
	MsgNameRequired     = "You must enter a name"
	MsgNameLength       = "Names must be between 1 and 255 characters"
	MsgPhoneInvalid     = "Phone numbers must be at least 9 characters long. " +
		"They can only include digits, spaces, plus and minus signs, and brackets."
)

// DefaultPhoneRegion is used to parse numbers entered without a country code.
const DefaultPhoneRegion = "GB"

func emailRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(MsgEmailRequired),
		validation.Match(EmailRegex).Error(MsgEmailInvalid),
		is.EmailFormat.Error(MsgEmailInvalid),
	}
}

// LoginRequest payload
type LoginRequest struct {
	EmailAddress string `form:"email_address" json:"email_address"`
	Password     string `form:"password" json:"password"`
}

// Normalize strips surrounding whitespace from the email address.
func (r *LoginRequest) Normalize() {
	r.EmailAddress = strings.TrimSpace(r.EmailAddress)
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EmailAddress, emailRules()...),
		validation.Field(&r.Password, validation.Required.Error(MsgPasswordRequired)),
	)
}

// EmailAddressPayload is the password reset request form.
type EmailAddressPayload struct {
	EmailAddress string `form:"email_address" json:"email_address"`
}

// Normalize strips surrounding whitespace from the email address.
func (r *EmailAddressPayload) Normalize() {
	r.EmailAddress = strings.TrimSpace(r.EmailAddress)
}

// Validate will run validation rules
func (r EmailAddressPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EmailAddress, emailRules()...),
	)
}

// PasswordResetPayload is the new password form behind a reset link.
type PasswordResetPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate checks the payload against policy.
func (r PasswordResetPayload) Validate(policy PasswordPolicy) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, policy.NewPasswordRules(MsgNewPassword)...),
		validation.Field(&r.ConfirmPassword, policy.ConfirmationRules(r.Password)...),
	)
}

// PasswordChangePayload is the authenticated change password form. The old
// password is only checked for presence here; whether it is correct is a
// remote check the flow performs separately.
type PasswordChangePayload struct {
	OldPassword     string `form:"old_password" json:"old_password"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate checks the payload against policy.
func (r PasswordChangePayload) Validate(policy PasswordPolicy) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required.Error(MsgOldPassword)),
		validation.Field(&r.Password, policy.NewPasswordRules(MsgNewPassword)...),
		validation.Field(&r.ConfirmPassword, policy.ConfirmationRules(r.Password)...),
	)
}

// CreateUserPayload is the account creation form.
type CreateUserPayload struct {
	Name        string `form:"name" json:"name"`
	PhoneNumber string `form:"phone_number" json:"phone_number"`
	Password    string `form:"password" json:"password"`
}

// Normalize strips surrounding whitespace from the name. The password is
// never trimmed.
func (r *CreateUserPayload) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
}

// Validate checks the payload against policy.
func (r CreateUserPayload) Validate(policy PasswordPolicy) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name,
			validation.Required.Error(MsgNameRequired),
			validation.Length(1, 255).Error(MsgNameLength),
		),
		validation.Field(&r.PhoneNumber,
			validation.Match(PhoneRegex).Error(MsgPhoneInvalid),
			validation.By(possiblePhoneNumber),
		),
		validation.Field(&r.Password, policy.NewPasswordRules(MsgCreatePassword)...),
	)
}

func possiblePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	num, err := phonenumbers.Parse(s, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return errors.New(MsgPhoneInvalid)
	}
	return nil
}

// UserResearchPayload is the user research opt in form.
type UserResearchPayload struct {
	UserResearchOptIn bool `form:"user_research_opt_in" json:"user_research_opt_in"`
}

// FormatValidationErrorToMap flattens ozzo validation errors into a field
// to message map. Other errors end up under the "form" key.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// ErrorFields returns the sorted field names of a validation error map.
func ErrorFields(errs map[string]string) []string {
	fields := make([]string, 0, len(errs))
	for k := range errs {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
