// Package credentials manages the credential and session lifecycle:
// registration, login, token issuance, refresh rotation, password reset,
// and email verification.
//
// Accounts:
//   - Account rows are persisted via Bun with case-insensitive email
//     uniqueness and soft deletion. A soft-deleted account stops
//     authenticating immediately; cleanup of dependent resources is
//     delegated to a DependentCleaner collaborator after the delete
//     commits.
//
// Tokens:
//   - TokenService mints HS256 access/refresh pairs with a `use` claim
//     so a refresh token can never be replayed as an access token. The
//     refresh token's jti is an AuthSession row id; rotation is a
//     conditional update against that row, so a stolen or replayed
//     refresh token wins at most once.
//
// Single-use secrets:
//   - Password reset and email verification use the same lifecycle: a
//     random secret travels out of band while only its SHA-256 digest is
//     stored, consumption sets used_at exactly once, and rows are kept
//     for audit. Request endpoints succeed regardless of whether the
//     address exists, so the API cannot be used to enumerate accounts.
//
// Flows are exposed three ways: the Auther facade for embedding, the
// command handlers (Initialize/FinalizePasswordReset, Request/Confirm
// AccountVerification) for message-driven callers, and a fiber
// controller via RegisterAuthRoutes. The middleware/jwtware package
// guards routes using either the TokenService or external JWKS keys.
package credentials
