// Package refresh generates and hashes opaque rotating refresh tokens.
//
// # Token format
//
// 64 bytes from crypto/rand, hex-encoded (128 characters). Tokens carry no
// structure: the session store maps a token to its session only through the
// SHA-256 hash, and the plaintext is returned to the caller exactly once.
//
// # Architecture boundaries
//
// This package owns token generation, hashing, and structural checks. Rotation
// policy and reuse handling live in the session package.
//
// # What this package must NOT do
//
//   - Access Redis, SQL, or any I/O besides the random source.
//   - Import goOTP, jwt, or session.
//   - Implement rotation or replay logic.
package refresh
