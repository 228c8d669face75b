// Package oidc validates provider-issued OIDC ID tokens against the
// provider's JWKS and maps their identity claims into a claims bag for the
// accounts Authorizer.
//
// The authorization-code exchange that produces the ID token is the calling
// application's responsibility; this package starts where a raw ID token
// arrives.
package oidc
