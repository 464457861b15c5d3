// Package goOTP provides a passwordless authentication engine: emailed one-time
// codes with per-user rate limiting, short-lived JWT access tokens, and rotating
// opaque refresh tokens bound to revocable sessions.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// goOTP is the public surface. It composes the otp, token and session packages,
// emits audit events and metrics, and runs the login flows served by httpapi.
// Storage is pluggable: Redis stores ship in otp and session, Postgres stores
// in store/postgres.
//
// # What this package must NOT do
//
//   - Return plaintext codes or refresh tokens anywhere except to the caller
//     that requested them.
//   - Put internal error detail into user-facing refusal messages.
//   - Start background work other than the audit dispatcher and an explicitly
//     started [Janitor].
package goOTP
