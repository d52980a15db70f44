// Package auth authenticates and authorizes requests for a JSON task API.
//
// Credentials:
//   - Accounts and credentials are persisted via Bun. A credential holds an
//     email and a bcrypt hash, never the plain password, and belongs to
//     exactly one account through its identity ref.
//
// Tokens:
//   - TokenServiceImpl signs HS256 access and refresh tokens. Verify returns
//     a Verification tagged Valid, Expired or Malformed so callers can tell a
//     stale token from a forged one without inspecting error strings.
//
// Gate:
//   - RouteAuthenticator.ProtectedRoute is a fiber handler placed in front of
//     the API group. Public routes pass through, every other request needs a
//     bearer token and gets a security context holding the Principal. Failures
//     are rendered as application/problem+json documents.
//
// Authorization:
//   - RequireRole and RequireOwnership guard individual routes. Ownership is
//     strict: roles never bypass it.
//
// Lifecycle:
//   - AccountStateMachine moves accounts between ACTIVE and INACTIVE and
//     reports each change to an ActivitySink. Sinks run best-effort.
package auth
