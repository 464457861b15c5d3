// Package middleware exposes HTTP middleware that authenticates requests
// against a goOTP.Engine.
//
// # Guards
//
//   - [RequireAccess]: stateless access-token verification, no store call.
//   - [RequireSession]: access token plus a live session in the store, so
//     logout takes effect before the token expires.
//
// Both read the token from the Authorization bearer header, falling back to
// the access_token cookie, and inject the verified claims into the request
// context.
//
// [RequireRole] and [RequirePermission] sit behind a guard and check the role
// claim, the latter through a permission.RoleManager. Every refusal is written
// in the API's JSON envelope.
//
// [ClientInfo] copies the client IP and User-Agent into the context so the
// Engine can record them on sessions and audit events.
//
// This package translates HTTP semantics into Engine calls. It does not parse
// JWTs or touch any store itself.
package middleware
