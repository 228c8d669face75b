package accounts

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

type Middleware interface {
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Post(controller.Routes.Authorize,
			controller.AuthorizePost,
		).
		SetName("authorize.post")

	app.
		Post(
			controller.Routes.Token,
			controller.TokenCreate,
		).
		SetName("token.post")

	app.Post(controller.Routes.TokenRefresh, controller.TokenRefresh).
		SetName("token-refresh.post")
	app.Post(controller.Routes.TokenRevoke, controller.TokenRevoke).
		SetName("token-revoke.post")

	guard := controller.Auther.ProtectedRoute(
		controller.Config,
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)

	app.Get(controller.Routes.Session, controller.SessionShow, guard).
		SetName("session.get")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")
}

type AuthControllerRoutes struct {
	Authorize    string
	Token        string
	TokenRefresh string
	TokenRevoke  string
	Session      string
	Logout       string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Config       Config
	Routes       *AuthControllerRoutes
	Auther       HTTPAuthorizer
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Authorize:    "/auth/authorize",
			Token:        "/auth/token",
			TokenRefresh: "/auth/token/refresh",
			TokenRevoke:  "/auth/token/revoke",
			Session:      "/auth/session",
			Logout:       "/auth/logout",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthorizer in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	return c
}

// AuthorizeRequest carries an external claims assertion plus optional client
// device info in the compact "ip|os|browser" form.
type AuthorizeRequest struct {
	Claims []Claim `form:"claims" json:"claims"`
	Device string  `form:"device" json:"device,omitempty"`
}

// Validate will run validation rules
func (r AuthorizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Claims,
			validation.Required,
		),
	)
}

func (a *AuthController) AuthorizePost(ctx router.Context) error {
	payload := new(AuthorizeRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("authorize bind payload", "error", err)
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Unable to parse request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("authorize validate payload", "error", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"error":      "Invalid authorize payload",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("authorize payload", "claims", print.MaybePrettyJSON(payload))
	}

	device := DeviceFromRequest(ctx)
	if payload.Device != "" {
		if parsed, err := ParseDeviceInfo(payload.Device); err == nil {
			device = parsed
		}
	}

	bag := NewClaimsBag(payload.Claims...)

	user, token, err := a.Auther.Authorize(ctx, bag, device)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"access_token": token,
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
			"roles": user.RoleNames(),
		},
		"claims": bag,
	})
}

// TokenCreateRequest asks for a refresh token for an existing user.
type TokenCreateRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r TokenCreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) TokenCreate(ctx router.Context) error {
	payload := new(TokenCreateRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("token create bind payload", "error", err)
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Unable to parse request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("token create validate payload", "error", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"error":      "Invalid token payload",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	refresh, err := a.Auther.IssueRefreshToken(ctx, payload.Email)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"refresh_token": refresh.Token,
		"expires_on":    refresh.UtcExpiresOn,
	})
}

// TokenRefreshRequest redeems a refresh token for a short lived access token.
type TokenRefreshRequest struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// Validate will run validation rules
func (r TokenRefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.RefreshToken,
			validation.Required,
		),
	)
}

func (a *AuthController) TokenRefresh(ctx router.Context) error {
	payload := new(TokenRefreshRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("token refresh bind payload", "error", err)
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Unable to parse request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("token refresh validate payload", "error", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"error":      "Invalid refresh payload",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	access, err := a.Auther.Redeem(ctx, payload.RefreshToken)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"access_token": access,
	})
}

// TokenRevokeRequest invalidates every refresh token the user holds.
type TokenRevokeRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r TokenRevokeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) TokenRevoke(ctx router.Context) error {
	payload := new(TokenRevokeRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("token revoke bind payload", "error", err)
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Unable to parse request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("token revoke validate payload", "error", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"error":      "Invalid revoke payload",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	revoked, err := a.Auther.RevokeSessions(ctx, payload.Email)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"revoked": revoked,
	})
}

// SessionShow reports the claims of the authenticated caller. The route is
// registered behind the token guard, which stores claims in router locals.
func (a *AuthController) SessionShow(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey())
	if !ok {
		return a.ErrorHandler(ctx, ErrUnauthenticated.Clone())
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user_id": claims.UserID(),
		"email":   claims.Email(),
		"roles":   claims.Roles(),
		"expires": claims.Expires(),
	})
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "signed out",
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a field to
// message map for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	if err != nil {
		out["payload"] = err.Error()
	}

	return out
}

func defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	return c.JSON(status, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
