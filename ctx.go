package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the AppUser in the given context
func WithContext(r context.Context, user *AppUser) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*AppUser, bool) {
	raw, ok := ctx.Value(userCtxKey).(*AppUser)
	return raw, ok
}

// WithClaimsContext sets the AccessClaims in the given context
func WithClaimsContext(r context.Context, claims AccessClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AccessClaims from the standard context
func GetClaims(ctx context.Context) (AccessClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AccessClaims)
	return raw, ok
}

// GetRouterClaims extracts the AccessClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AccessClaims, bool) {
	if key == "" {
		key = "user" // Default key used by the token guard middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AccessClaims)
	return claims, ok
}

// HasRole is a convenience check against claims stored in the standard context
func HasRole(ctx context.Context, role string) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	return claims.HasRole(role)
}

// HasRoleFromRouter is a convenience check against claims in the router context
func HasRoleFromRouter(ctx router.Context, role string) bool {
	claims, ok := GetRouterClaims(ctx, "")
	if !ok {
		return false
	}
	return claims.HasRole(role)
}
