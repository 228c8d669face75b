package tokenguard_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"

	"github.com/goliatone/go-accounts/middleware/tokenguard"
)

type stubClaims struct {
	subject string
	email   string
	roles   []string
}

func (c stubClaims) Subject() string { return c.subject }
func (c stubClaims) UserID() string  { return c.subject }
func (c stubClaims) Email() string   { return c.email }
func (c stubClaims) Roles() []string { return c.roles }

func (c stubClaims) HasRole(role string) bool {
	for _, r := range c.roles {
		if r == role {
			return true
		}
	}
	return false
}

// Member < Owner < Administrator for the stub's purposes.
func (c stubClaims) IsAtLeast(minRole string) bool {
	rank := map[string]int{"Visitor": 0, "Member": 1, "Owner": 2, "Administrator": 3}
	want := rank[minRole]
	for _, r := range c.roles {
		if rank[r] >= want {
			return true
		}
	}
	return false
}

type stubValidator struct {
	claims tokenguard.AuthClaims
	err    error
	got    string
}

func (v *stubValidator) ValidateAccessToken(tokenString string) (tokenguard.AuthClaims, error) {
	v.got = tokenString
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func TestGuard_BearerHeaderExtraction(t *testing.T) {
	validator := &stubValidator{claims: stubClaims{subject: "user-1", roles: []string{"Member"}}}

	guard := tokenguard.New(tokenguard.Config{
		TokenValidator: validator,
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	handlerCalled := false
	handler := guard(func(ctx router.Context) error {
		handlerCalled = true
		return nil
	})

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer the-access-token"
	ctx.On("GetString", "Authorization", "").Return("Bearer the-access-token")
	ctx.On("Locals", "user", mock.Anything).Return(nil)

	if err := handler(ctx); err != nil {
		t.Fatalf("unexpected error for valid token: %v", err)
	}
	if !handlerCalled {
		t.Error("expected wrapped handler to run after successful validation")
	}
	if validator.got != "the-access-token" {
		t.Errorf("expected raw token without scheme, got %q", validator.got)
	}
}

func TestGuard_MissingToken(t *testing.T) {
	validator := &stubValidator{claims: stubClaims{subject: "user-1"}}

	guard := tokenguard.New(tokenguard.Config{
		TokenValidator: validator,
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	handler := guard(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("")

	err := handler(ctx)
	if err == nil {
		t.Fatal("expected error for missing token, got nil")
	}
	if !strings.Contains(err.Error(), tokenguard.ErrTokenMissingOrMalformed.Error()) {
		t.Errorf("expected missing token error, got: %v", err)
	}
}

func TestGuard_ValidationFailure(t *testing.T) {
	validator := &stubValidator{err: errors.New("token is expired")}

	guard := tokenguard.New(tokenguard.Config{
		TokenValidator: validator,
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	handler := guard(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer expired-token"
	ctx.On("GetString", "Authorization", "").Return("Bearer expired-token")

	err := handler(ctx)
	if err == nil {
		t.Fatal("expected error for expired token, got nil")
	}
	if !strings.Contains(err.Error(), "token is expired") {
		t.Errorf("expected token expired error, got: %v", err)
	}
}

func TestGuard_CustomTokenLookup(t *testing.T) {
	validator := &stubValidator{claims: stubClaims{subject: "user-1"}}

	guard := tokenguard.New(tokenguard.Config{
		TokenValidator: validator,
		TokenLookup:    "query:token,cookie:session_token",
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	handler := guard(func(ctx router.Context) error { return nil })

	// query parameter
	ctx := router.NewMockContext()
	ctx.QueriesM["token"] = "query-token"
	ctx.On("Locals", "user", mock.Anything).Return(nil)

	if err := handler(ctx); err != nil {
		t.Fatalf("expected no error for query token, got %v", err)
	}
	if validator.got != "query-token" {
		t.Errorf("expected query token, got %q", validator.got)
	}

	// cookie
	ctx = router.NewMockContext()
	ctx.CookiesM["session_token"] = "cookie-token"
	ctx.On("Locals", "user", mock.Anything).Return(nil)

	if err := handler(ctx); err != nil {
		t.Fatalf("expected no error for cookie token, got %v", err)
	}
	if validator.got != "cookie-token" {
		t.Errorf("expected cookie token, got %q", validator.got)
	}
}

func TestGuard_RequiredRole(t *testing.T) {
	validator := &stubValidator{claims: stubClaims{subject: "user-1", roles: []string{"Member"}}}

	guard := tokenguard.New(tokenguard.Config{
		TokenValidator: validator,
		RequiredRole:   "Administrator",
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	handler := guard(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer member-token"
	ctx.On("GetString", "Authorization", "").Return("Bearer member-token")

	err := handler(ctx)
	if err == nil {
		t.Fatal("expected error for missing required role, got nil")
	}
	if !strings.Contains(err.Error(), "Administrator") {
		t.Errorf("expected required-role error, got: %v", err)
	}
}

func TestGuard_MinimumRole(t *testing.T) {
	validator := &stubValidator{claims: stubClaims{subject: "user-1", roles: []string{"Owner"}}}

	guard := tokenguard.New(tokenguard.Config{
		TokenValidator: validator,
		MinimumRole:    "Member",
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})

	handlerCalled := false
	handler := guard(func(ctx router.Context) error {
		handlerCalled = true
		return nil
	})

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer owner-token"
	ctx.On("GetString", "Authorization", "").Return("Bearer owner-token")
	ctx.On("Locals", "user", mock.Anything).Return(nil)

	if err := handler(ctx); err != nil {
		t.Fatalf("expected Owner to satisfy minimum role Member, got %v", err)
	}
	if !handlerCalled {
		t.Error("expected wrapped handler to run")
	}
}

// pathMock overrides Path() from the base MockContext.
type pathMock struct {
	*router.MockContext
	pathOverride string
}

func (m *pathMock) Path() string {
	return m.pathOverride
}

func TestGuard_FilterSkipsPublicRoutes(t *testing.T) {
	validator := &stubValidator{claims: stubClaims{subject: "user-1"}}

	guard := tokenguard.New(tokenguard.Config{
		TokenValidator: validator,
		Filter: func(ctx router.Context) bool {
			return ctx.Path() == "/public"
		},
	})

	handler := guard(func(ctx router.Context) error { return nil })

	ctx := &pathMock{
		MockContext:  router.NewMockContext(),
		pathOverride: "/public",
	}

	if err := handler(ctx); err != nil {
		t.Fatalf("expected no error when filter skips, got %v", err)
	}
	if !ctx.NextCalled {
		t.Error("expected Next() to be invoked due to filter skip")
	}
}
