// Package token composes the access-token manager and the opaque refresh-token
// generator into the token service used by session management.
//
// The service owns no persisted state: its output is a pure function of the
// signing key, the subject, and the clock.
package token
