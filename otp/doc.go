// Package otp issues and verifies short-lived numeric one-time codes.
//
// # Flow
//
// [Engine.CanRequest] consults the injected [RateLimiter] (cooldown and hourly
// cap). [Engine.Create] draws a uniform code, stores only sha256(code||secret),
// retires any earlier unused code of the same type, and returns the plaintext for
// out-of-band delivery. [Engine.Verify] loads the newest active record and
// compares in constant time, counting failures up to the attempt cap.
//
// # Failure semantics
//
// Rate limits, lockouts and wrong codes are policy outcomes returned as
// [Decision] and [Result] values. Only storage failures are returned as errors,
// wrapped with [ErrStoreUnavailable].
//
// # What this package must NOT do
//
//   - Persist or log plaintext codes.
//   - Compare code hashes with ==.
//   - Deliver codes; delivery belongs to the caller.
package otp
