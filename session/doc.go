// Package session binds opaque refresh tokens to revocable, device-scoped
// session records and mediates their rotation.
//
// # Lifecycle
//
// A session is CREATED active, stays ACTIVE while valid and unexpired, and
// leaves that state by rotation (same record, new refresh hash), revocation
// (IsValid=false) or expiry. Cleanup purges revoked and expired records.
//
// # Rotation
//
// [Manager.Refresh] finds the active record by the SHA-256 of the presented
// token, mints a new pair through the token service, then asks the [Store] to
// swap the hash only if the record still carries the presented hash, is valid
// and is unexpired. Of any number of concurrent refreshes with one token, at
// most one wins.
//
// A presented token matching a record's previous hash is a replay of a rotated
// token; with RevokeOnReuse the session is revoked.
//
// # What this package must NOT do
//
//   - Store plaintext refresh tokens.
//   - Be imported by the token or jwt packages.
package session
