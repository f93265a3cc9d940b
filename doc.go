// Package accounts implements the account pages of the marketplace
// frontend: login and logout, password reset by emailed link, password
// change, account creation from an invitation link and the user research
// preference.
//
// Accounts live in the external data API (AccountAPI); this package never
// stores users. It keeps only the session and, optionally, a ledger of
// redeemed reset tokens.
//
// Tokens:
//   - TokenService mints and validates signed, timestamped tokens for two
//     purposes, password reset and invitation, each under its own salt so a
//     token for one is never accepted as the other.
//   - Reset tokens are invalidated by any later password change (see
//     IsStale) and, when a Redeemer is configured, can be redeemed once.
//
// Flows:
//   - Each flow is a handler with an Execute(ctx, message) method. Handlers
//     report a typed outcome through the message's OnResponse callback and
//     return an error only for dependency failures, which render as 503.
//   - The reset request flow answers identically whether or not the email
//     has an account.
//
// HTTP:
//   - AccountController renders the pages with fiber views. RouteAuthenticator
//     loads the session, guards protected routes and maps errors to the
//     errors/<status> templates.
//
// Activity sinks:
//   - ActivitySink receives login, reset, creation and preference events.
//     Sinks run best effort: errors are logged, never returned to the user.
package accounts
