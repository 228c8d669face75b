package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-router"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds token issuer and middleware options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetRefreshTokenDuration() int
	GetMaxActiveTokens() int
}

// Authorizer resolves an external claims assertion to a local user,
// provisioning from invitations or pre-authorization when needed.
type AuthorizerClient interface {
	Authorize(ctx context.Context, claims *ClaimsBag, device DeviceInfo) (*AppUser, error)
}

// HTTPAuthorizer is the HTTP facing surface of the authorizer: session
// cookies, route protection, and error translation.
type HTTPAuthorizer interface {
	Middleware
	Authorize(c router.Context, bag *ClaimsBag, device DeviceInfo) (*AppUser, string, error)
	IssueRefreshToken(c router.Context, email string) (*RefreshToken, error)
	Redeem(c router.Context, refreshToken string) (string, error)
	RevokeSessions(c router.Context, email string) (int, error)
	Logout(c router.Context)
	MakeClientRouteAuthErrorHandler(optionalAuth bool) func(c router.Context, err error) error
}

// TokenClient mints and rotates tokens for resolved users.
type TokenClient interface {
	IssueAccessToken(user *AppUser, duration time.Duration) (string, error)
	CreateRefreshToken(ctx context.Context, email string, duration time.Duration) (*RefreshToken, error)
	RedeemRefreshToken(ctx context.Context, token string) (string, error)
	RevokeRefreshTokens(ctx context.Context, email string) (int, error)
}

// ValidationFn lets callers veto an authorization after the user has been
// resolved but before claims enrichment and history logging. Returned errors
// propagate unmodified.
type ValidationFn func(ctx context.Context, user *AppUser, claims *ClaimsBag) error

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
