package accounts

import "time"

// IsStale reports whether a token issued at issuedAt was superseded by a
// password change at changedAt. A nil change time is never stale.
//
// Tokens carry second precision, so the comparison is made on whole
// seconds: a change within the same second as the mint does not make the
// token stale. This keeps a reset requested right after a password change
// usable. A Redeemer closes the remaining window for the token's own reuse.
func IsStale(issuedAt time.Time, changedAt *time.Time) bool {
	if changedAt == nil || changedAt.IsZero() {
		return false
	}
	return changedAt.Unix() > issuedAt.Unix()
}
