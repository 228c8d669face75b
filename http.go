package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts/middleware/tokenguard"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// HeaderDeviceInfo carries client reported device info, either the compact
// "ip|os|browser" form or base64 JSON.
const HeaderDeviceInfo = "X-Device-Info"

// RouteAuthorizer binds the authorizer and token issuer to HTTP routes:
// session cookies, protected route middleware, and error translation.
type RouteAuthorizer struct {
	authorizer       AuthorizerClient
	tokens           TokenClient
	validator        TokenValidator
	cfg              Config
	cookieDuration   time.Duration
	refreshDuration  time.Duration
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

var _ HTTPAuthorizer = (*RouteAuthorizer)(nil)

func NewHTTPAuthorizer(authorizer AuthorizerClient, tokens TokenClient, validator TokenValidator, cfg Config) (*RouteAuthorizer, error) {
	if authorizer == nil || tokens == nil || validator == nil {
		return nil, ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"reason": "authorizer, tokens, and validator are required"})
	}

	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	refreshDuration := 30 * 24 * time.Hour
	if cfg.GetRefreshTokenDuration() > 0 {
		refreshDuration = time.Duration(cfg.GetRefreshTokenDuration()) * time.Hour
	}

	a := &RouteAuthorizer{
		cfg:             cfg,
		authorizer:      authorizer,
		tokens:          tokens,
		validator:       validator,
		Logger:          defLogger{},
		cookieDuration:  cookieDuration,
		refreshDuration: refreshDuration,
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a RouteAuthorizer) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

func (a RouteAuthorizer) GetRefreshDuration() time.Duration {
	return a.refreshDuration
}

func (a *RouteAuthorizer) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return tokenguard.New(tokenguard.Config{
		ErrorHandler:   errorHandler,
		TokenValidator: guardValidator{a.validator},
		AuthScheme:     cfg.GetAuthScheme(),
		ContextKey:     cfg.GetContextKey(),
		TokenLookup:    cfg.GetTokenLookup(),
		ContextEnricher: func(c context.Context, claims tokenguard.AuthClaims) context.Context {
			if ac, ok := claims.(AccessClaims); ok {
				return WithClaimsContext(c, ac)
			}
			return c
		},
	})
}

// Authorize resolves the claims assertion, mints an access token for the
// resolved user, and sets the session cookie.
func (a *RouteAuthorizer) Authorize(ctx router.Context, bag *ClaimsBag, device DeviceInfo) (*AppUser, string, error) {
	user, err := a.authorizer.Authorize(ctx.Context(), bag, device)
	if err != nil {
		a.Logger.Error("Authorize error: %s", err)
		return nil, "", err
	}

	token, err := a.tokens.IssueAccessToken(user, a.cookieDuration)
	if err != nil {
		a.Logger.Error("Issue access token error: %s", err)
		return nil, "", err
	}

	a.setCookieToken(ctx, token, a.cookieDuration)
	return user, token, nil
}

// IssueRefreshToken mints a refresh token for the user with the configured
// refresh duration.
func (a *RouteAuthorizer) IssueRefreshToken(ctx router.Context, email string) (*RefreshToken, error) {
	refresh, err := a.tokens.CreateRefreshToken(ctx.Context(), email, a.refreshDuration)
	if err != nil {
		a.Logger.Error("Create refresh token error: %s", err)
		return nil, err
	}
	return refresh, nil
}

// Redeem exchanges a refresh token for a short lived access token and
// refreshes the session cookie.
func (a *RouteAuthorizer) Redeem(ctx router.Context, refreshToken string) (string, error) {
	access, err := a.tokens.RedeemRefreshToken(ctx.Context(), refreshToken)
	if err != nil {
		a.Logger.Error("Redeem refresh token error: %s", err)
		return "", err
	}

	a.setCookieToken(ctx, access, RedeemedAccessTokenDuration)
	return access, nil
}

// RevokeSessions invalidates every refresh token the user still holds and
// clears the session cookie.
func (a *RouteAuthorizer) RevokeSessions(ctx router.Context, email string) (int, error) {
	revoked, err := a.tokens.RevokeRefreshTokens(ctx.Context(), email)
	if err != nil {
		a.Logger.Error("Revoke refresh tokens error: %s", err)
		return 0, err
	}

	a.cookieDel(ctx, a.cfg.GetContextKey())
	return revoked, nil
}

func (a *RouteAuthorizer) Logout(ctx router.Context) {
	a.cookieDel(ctx, a.cfg.GetContextKey())
}

func (a *RouteAuthorizer) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

// DeviceFromRequest reads client device info from the request. The
// X-Device-Info header wins over connection data when present.
func DeviceFromRequest(ctx router.Context) DeviceInfo {
	if raw := ctx.GetString(HeaderDeviceInfo, ""); raw != "" {
		if info, err := DecodeDeviceInfo(raw); err == nil {
			return info
		}
		if info, err := ParseDeviceInfo(raw); err == nil {
			return info
		}
	}

	return DeviceInfo{
		IPAddress: ctx.IP(),
		Browser:   ctx.GetString("User-Agent", ""),
	}.Normalize()
}

func (a *RouteAuthorizer) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthorizer) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthorizer) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	status := richErr.Code
	if status == 0 {
		status = router.StatusUnauthorized
	}

	return c.JSON(status, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}

func (a *RouteAuthorizer) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Route error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		status := richErr.Code
		if status == 0 {
			status = router.StatusInternalServerError
		}
		return c.JSON(status, map[string]any{
			"error":     richErr.Message,
			"text_code": richErr.TextCode,
		})
	}
}

// guardValidator narrows the package validator to the guard's local interface.
type guardValidator struct {
	validator TokenValidator
}

func (g guardValidator) ValidateAccessToken(tokenString string) (tokenguard.AuthClaims, error) {
	claims, err := g.validator.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
