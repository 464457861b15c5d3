// Package jwt issues and verifies short-lived access tokens.
//
// Tokens carry the user id, email, role and owning session id. HMAC signing
// (HS256 by default) is the primary mode; EdDSA is available for deployments that
// verify tokens outside this process. Parsing pins the configured algorithm,
// requires exp and iat, and honors an injectable clock.
package jwt
