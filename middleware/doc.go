// Package middleware exposes HTTP middleware adapters that enforce access-token
// authentication on top of identity.Engine token validation.
//
// # Guards
//
//   - [RequireAuth] — verifies the bearer token and injects its claims.
//   - [RequireRole] — RequireAuth plus a group membership check.
//
// Each guard reads the Authorization header, calls Engine.ValidateAccess, and
// injects validated claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself — all decisions are delegated to Engine.ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access stores or Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the validated claims.
package middleware
