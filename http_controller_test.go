package accounts

import (
	"errors"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testConfig is a static Config stub for controller tests.
type testConfig struct{}

func (testConfig) GetSigningKey() string       { return "test-signing-key" }
func (testConfig) GetSigningMethod() string    { return "HS256" }
func (testConfig) GetContextKey() string       { return "jwt" }
func (testConfig) GetTokenExpiration() int     { return 24 }
func (testConfig) GetTokenLookup() string      { return "header:Authorization" }
func (testConfig) GetAuthScheme() string       { return "Bearer" }
func (testConfig) GetIssuer() string           { return "test-issuer" }
func (testConfig) GetAudience() []string       { return []string{"test:audience"} }
func (testConfig) GetRefreshTokenDuration() int { return 720 }
func (testConfig) GetMaxActiveTokens() int     { return 10 }

// mockHTTPAuthorizer implements HTTPAuthorizer for controller tests.
type mockHTTPAuthorizer struct {
	mock.Mock
}

func (m *mockHTTPAuthorizer) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	args := m.Called(cfg, errorHandler)
	if fn, ok := args.Get(0).(router.MiddlewareFunc); ok {
		return fn
	}
	return nil
}

func (m *mockHTTPAuthorizer) Authorize(c router.Context, bag *ClaimsBag, device DeviceInfo) (*AppUser, string, error) {
	args := m.Called(c, bag, device)
	var user *AppUser
	if u, ok := args.Get(0).(*AppUser); ok {
		user = u
	}
	return user, args.String(1), args.Error(2)
}

func (m *mockHTTPAuthorizer) IssueRefreshToken(c router.Context, email string) (*RefreshToken, error) {
	args := m.Called(c, email)
	if token, ok := args.Get(0).(*RefreshToken); ok {
		return token, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHTTPAuthorizer) Redeem(c router.Context, refreshToken string) (string, error) {
	args := m.Called(c, refreshToken)
	return args.String(0), args.Error(1)
}

func (m *mockHTTPAuthorizer) RevokeSessions(c router.Context, email string) (int, error) {
	args := m.Called(c, email)
	return args.Int(0), args.Error(1)
}

func (m *mockHTTPAuthorizer) Logout(c router.Context) {
	m.Called(c)
}

func (m *mockHTTPAuthorizer) MakeClientRouteAuthErrorHandler(optionalAuth bool) func(router.Context, error) error {
	args := m.Called(optionalAuth)
	if fn, ok := args.Get(0).(func(router.Context, error) error); ok {
		return fn
	}
	return nil
}

func newTestAuthController(auther HTTPAuthorizer) *AuthController {
	return NewAuthController(func(c *AuthController) *AuthController {
		c.Auther = auther
		c.Config = testConfig{}
		return c
	})
}

// registerDeviceFallback satisfies the DeviceFromRequest lookups every
// authorize request performs.
func registerDeviceFallback(ctx interface {
	On(string, ...any) *mock.Call
}) {
	ctx.On("GetString", HeaderDeviceInfo, "").Return("")
	ctx.On("IP").Return("198.51.100.7")
	ctx.On("GetString", "User-Agent", "").Return("")
}

func TestNewAuthControllerPanics(t *testing.T) {
	assert.PanicsWithValue(t, "Missing HTTPAuthorizer in auth controller...", func() {
		NewAuthController()
	})

	assert.PanicsWithValue(t, "Missing Config in auth controller...", func() {
		NewAuthController(func(c *AuthController) *AuthController {
			c.Auther = &mockHTTPAuthorizer{}
			return c
		})
	})
}

func TestAuthControllerDefaultRoutes(t *testing.T) {
	controller := newTestAuthController(&mockHTTPAuthorizer{})

	assert.Equal(t, "/auth/authorize", controller.Routes.Authorize)
	assert.Equal(t, "/auth/token", controller.Routes.Token)
	assert.Equal(t, "/auth/token/refresh", controller.Routes.TokenRefresh)
	assert.Equal(t, "/auth/token/revoke", controller.Routes.TokenRevoke)
	assert.Equal(t, "/auth/session", controller.Routes.Session)
	assert.Equal(t, "/auth/logout", controller.Routes.Logout)
}

func TestAuthorizePost(t *testing.T) {
	auther := &mockHTTPAuthorizer{}
	controller := newTestAuthController(auther)

	user := &AppUser{ID: uuid.New(), Email: "jane@example.com"}

	ctx := router.NewMockContext()
	registerDeviceFallback(ctx)
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*AuthorizeRequest)
		payload.Claims = []Claim{
			{Type: ClaimEmail, Value: "jane@example.com"},
			{Type: ClaimProvider, Value: "google-oauth2"},
		}
		payload.Device = "203.0.113.9|macOS|Safari"
	})

	auther.On("Authorize", ctx,
		mock.MatchedBy(func(bag *ClaimsBag) bool {
			return bag.Get(ClaimEmail) == "jane@example.com"
		}),
		DeviceInfo{IPAddress: "203.0.113.9", OS: "macOS", Browser: "Safari"},
	).Return(user, "signed-token", nil)

	ctx.On("JSON", router.StatusOK, mock.MatchedBy(func(v map[string]any) bool {
		return v["access_token"] == "signed-token"
	})).Return(nil)

	require.NoError(t, controller.AuthorizePost(ctx))

	auther.AssertExpectations(t)
	ctx.AssertExpectations(t)
}

func TestAuthorizePostValidation(t *testing.T) {
	controller := newTestAuthController(&mockHTTPAuthorizer{})

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(nil)
	ctx.On("JSON", fiber.StatusBadRequest, mock.MatchedBy(func(v map[string]any) bool {
		fields, ok := v["validation"].(map[string]string)
		return ok && fields["claims"] != ""
	})).Return(nil)

	require.NoError(t, controller.AuthorizePost(ctx))
	ctx.AssertExpectations(t)
}

func TestAuthorizePostBindError(t *testing.T) {
	controller := newTestAuthController(&mockHTTPAuthorizer{})

	var handled error
	controller.ErrorHandler = func(c router.Context, err error) error {
		handled = err
		return nil
	}

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(errors.New("malformed body"))

	require.NoError(t, controller.AuthorizePost(ctx))

	var richErr *goerrors.Error
	require.True(t, goerrors.As(handled, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
}

func TestTokenCreate(t *testing.T) {
	auther := &mockHTTPAuthorizer{}
	controller := newTestAuthController(auther)

	expires := time.Now().Add(720 * time.Hour)
	auther.On("IssueRefreshToken", mock.Anything, "jane@example.com").
		Return(&RefreshToken{Token: "opaque-refresh", UtcExpiresOn: expires}, nil)

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		args.Get(0).(*TokenCreateRequest).Email = "jane@example.com"
	})
	ctx.On("JSON", router.StatusOK, mock.MatchedBy(func(v map[string]any) bool {
		return v["refresh_token"] == "opaque-refresh"
	})).Return(nil)

	require.NoError(t, controller.TokenCreate(ctx))

	auther.AssertExpectations(t)
	ctx.AssertExpectations(t)
}

func TestTokenCreateValidation(t *testing.T) {
	controller := newTestAuthController(&mockHTTPAuthorizer{})

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		args.Get(0).(*TokenCreateRequest).Email = "not-an-email"
	})
	ctx.On("JSON", fiber.StatusBadRequest, mock.MatchedBy(func(v map[string]any) bool {
		fields, ok := v["validation"].(map[string]string)
		return ok && fields["email"] != ""
	})).Return(nil)

	require.NoError(t, controller.TokenCreate(ctx))
	ctx.AssertExpectations(t)
}

func TestTokenRefresh(t *testing.T) {
	auther := &mockHTTPAuthorizer{}
	controller := newTestAuthController(auther)

	auther.On("Redeem", mock.Anything, "opaque-refresh").Return("fresh-access", nil)

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		args.Get(0).(*TokenRefreshRequest).RefreshToken = "opaque-refresh"
	})
	ctx.On("JSON", router.StatusOK, mock.MatchedBy(func(v map[string]any) bool {
		return v["access_token"] == "fresh-access"
	})).Return(nil)

	require.NoError(t, controller.TokenRefresh(ctx))

	auther.AssertExpectations(t)
	ctx.AssertExpectations(t)
}

func TestTokenRefreshErrorGoesToHandler(t *testing.T) {
	auther := &mockHTTPAuthorizer{}
	controller := newTestAuthController(auther)

	var handled error
	controller.ErrorHandler = func(c router.Context, err error) error {
		handled = err
		return nil
	}

	auther.On("Redeem", mock.Anything, "replayed-token").Return("", ErrTokenRevoked)

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		args.Get(0).(*TokenRefreshRequest).RefreshToken = "replayed-token"
	})

	require.NoError(t, controller.TokenRefresh(ctx))
	assert.ErrorIs(t, handled, ErrTokenRevoked)
}

func TestTokenRevoke(t *testing.T) {
	auther := &mockHTTPAuthorizer{}
	controller := newTestAuthController(auther)

	auther.On("RevokeSessions", mock.Anything, "jane@example.com").Return(2, nil)

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		args.Get(0).(*TokenRevokeRequest).Email = "jane@example.com"
	})
	ctx.On("JSON", router.StatusOK, mock.MatchedBy(func(v map[string]any) bool {
		return v["revoked"] == 2
	})).Return(nil)

	require.NoError(t, controller.TokenRevoke(ctx))

	auther.AssertExpectations(t)
	ctx.AssertExpectations(t)
}

func TestSessionShow(t *testing.T) {
	controller := newTestAuthController(&mockHTTPAuthorizer{})

	claims := &TokenClaims{
		UID:       "user-123",
		UserEmail: "jane@example.com",
		RoleNames: []string{RoleMember},
	}

	ctx := router.NewMockContext()
	ctx.LocalsMock["jwt"] = claims
	ctx.On("JSON", router.StatusOK, mock.MatchedBy(func(v map[string]any) bool {
		return v["user_id"] == "user-123" && v["email"] == "jane@example.com"
	})).Return(nil)

	require.NoError(t, controller.SessionShow(ctx))
	ctx.AssertExpectations(t)
}

func TestSessionShowUnauthenticated(t *testing.T) {
	controller := newTestAuthController(&mockHTTPAuthorizer{})

	var handled error
	controller.ErrorHandler = func(c router.Context, err error) error {
		handled = err
		return nil
	}

	ctx := router.NewMockContext()

	require.NoError(t, controller.SessionShow(ctx))
	assert.True(t, IsUnauthenticatedError(handled))
}

func TestLogOut(t *testing.T) {
	auther := &mockHTTPAuthorizer{}
	controller := newTestAuthController(auther)

	ctx := router.NewMockContext()
	auther.On("Logout", ctx).Return()
	ctx.On("JSON", router.StatusOK, map[string]string{"status": "signed out"}).Return(nil)

	require.NoError(t, controller.LogOut(ctx))

	auther.AssertExpectations(t)
	ctx.AssertExpectations(t)
}

func TestFormatValidationErrorToMap(t *testing.T) {
	verrs := validation.Errors{
		"email": errors.New("must be a valid email address"),
	}
	out := FormatValidationErrorToMap(verrs)
	assert.Equal(t, "must be a valid email address", out["email"])

	out = FormatValidationErrorToMap(errors.New("boom"))
	assert.Equal(t, "boom", out["payload"])
}
