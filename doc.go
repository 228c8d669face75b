// Package accounts provides claims-driven authorization for multi-tenant
// applications: invitation based provisioning, role assignment, login history,
// and access/refresh token lifecycle.
//
// Authorization flow:
//   - Authorizer consumes a ClaimsBag produced by an external OAuth/OIDC
//     provider (see provider/oidc) and resolves it to an AppUser. Existing
//     users take a fast path; unknown emails are matched against pending
//     account invitations, application invitations, and a pre-authorization
//     allow-list, in that order. Accounts past their expiration date are
//     rejected before any writes happen.
//   - Provisioning runs inside a single store transaction so the account,
//     user, and role link either all persist or none do.
//
// Token lifecycle:
//   - TokenIssuer signs HMAC-SHA256 access tokens carrying the user's email
//     and role names, and manages opaque refresh tokens with a per-user cap
//     and single-use rotation. Redeeming a refresh token invalidates it and
//     returns a fresh short-lived access token.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the Authorizer and
//     TokenIssuer to describe authorize, provision, and token events. Sinks
//     run best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authorization.
package accounts
