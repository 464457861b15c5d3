// Package permission maps roles to named permissions using a bitmask per role.
//
// # Model
//
// A [Registry] assigns each permission name a bit. A [RoleManager] compiles
// each role's permission list into a [Mask] once at startup and answers
// [RoleManager.Has] without allocation. With the root bit reserved, a role
// holding it passes every check for a registered permission.
//
// [Default] builds the registry and roles used by the HTTP API: SUPER_ADMIN,
// ADMIN, MENTOR, STUDENT, ALUMNI and USER.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goOTP, jwt, or session.
//   - Change a role's mask after Freeze.
package permission
