// Package rate provides the Redis-backed limiters shared by every instance of
// a deployment.
//
// # Window semantics
//
// SlidingWindow limits OTP requests per user: each issued code adds a member
// scored by its creation time to a per-user sorted set (key
// "<prefix>:<userID>"); entries older than an hour are trimmed on write and
// the set expires shortly after the last write. Decisions are delegated to
// otp.Policy so every limiter refuses with the same messages and wait times.
//
// FixedWindow throttles raw HTTP traffic per client IP: INCR on
// "<prefix>:<ip>", with the window's expiry set by the first hit. It knows
// nothing about users and runs before any store is touched.
package rate
