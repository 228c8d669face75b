package accounts_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// MockConfig implements accounts.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetSigningMethod() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetContextKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetTokenExpiration() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetTokenLookup() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAuthScheme() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConfig) GetRefreshTokenDuration() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetMaxActiveTokens() int {
	args := m.Called()
	return args.Int(0)
}

func newMockConfig() *MockConfig {
	mockConfig := new(MockConfig)
	mockConfig.On("GetSigningKey").Return("test-signing-key")
	mockConfig.On("GetSigningMethod").Return("HS256")
	mockConfig.On("GetContextKey").Return("jwt")
	mockConfig.On("GetTokenExpiration").Return(24)
	mockConfig.On("GetTokenLookup").Return("header:Authorization")
	mockConfig.On("GetAuthScheme").Return("Bearer")
	mockConfig.On("GetIssuer").Return("test-issuer")
	mockConfig.On("GetAudience").Return([]string{"test:audience"})
	mockConfig.On("GetRefreshTokenDuration").Return(720)
	mockConfig.On("GetMaxActiveTokens").Return(10)
	return mockConfig
}

// MockAuthorizerClient implements accounts.AuthorizerClient
type MockAuthorizerClient struct {
	mock.Mock
}

func (m *MockAuthorizerClient) Authorize(ctx context.Context, claims *accounts.ClaimsBag, device accounts.DeviceInfo) (*accounts.AppUser, error) {
	args := m.Called(ctx, claims, device)
	if user, ok := args.Get(0).(*accounts.AppUser); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTokenClient implements accounts.TokenClient
type MockTokenClient struct {
	mock.Mock
}

func (m *MockTokenClient) IssueAccessToken(user *accounts.AppUser, duration time.Duration) (string, error) {
	args := m.Called(user, duration)
	return args.String(0), args.Error(1)
}

func (m *MockTokenClient) CreateRefreshToken(ctx context.Context, email string, duration time.Duration) (*accounts.RefreshToken, error) {
	args := m.Called(ctx, email, duration)
	if token, ok := args.Get(0).(*accounts.RefreshToken); ok {
		return token, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTokenClient) RedeemRefreshToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *MockTokenClient) RevokeRefreshTokens(ctx context.Context, email string) (int, error) {
	args := m.Called(ctx, email)
	return args.Int(0), args.Error(1)
}

type capturingSink struct {
	events []accounts.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt accounts.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

// setupTestDB opens an in-memory sqlite database and applies the embedded
// sqlite migration so repository tests run against the real schema.
func setupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	db.RegisterModel((*accounts.AppUserRole)(nil))

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	ddl, err := accounts.GetMigrationsFS().ReadFile("data/sql/migrations/sqlite/20240115000000_accounts_schema.up.sql")
	require.NoError(t, err)

	for _, stmt := range strings.Split(string(ddl), "--bun:split") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}

	return db, func() {
		db.Close()
	}
}

func newTestManager(t *testing.T) (accounts.RepositoryManager, *bun.DB, func()) {
	t.Helper()
	db, cleanup := setupTestDB(t)
	return accounts.NewRepositoryManager(db), db, cleanup
}

func seedAccountType(t *testing.T, db *bun.DB, repo accounts.RepositoryManager, name string) *accounts.AccountType {
	t.Helper()

	id, err := hashid.NewUUID(name)
	require.NoError(t, err)

	record, err := repo.AccountTypes().CreateTx(context.Background(), db, &accounts.AccountType{
		ID:        id,
		Name:      name,
		CreatedBy: "system",
	})
	require.NoError(t, err)
	return record
}

// oauthClaims builds the claims assertion an OAuth callback would hand over.
func oauthClaims(email string) *accounts.ClaimsBag {
	return accounts.NewClaimsBag(
		accounts.Claim{Type: accounts.ClaimSubject, Value: "google-oauth2|" + email},
		accounts.Claim{Type: accounts.ClaimProvider, Value: "google-oauth2"},
		accounts.Claim{Type: accounts.ClaimEmail, Value: email},
		accounts.Claim{Type: accounts.ClaimName, Value: "Test User"},
	)
}

func testDevice() accounts.DeviceInfo {
	return accounts.DeviceInfo{
		IPAddress: "203.0.113.10",
		OS:        "Linux",
		Browser:   "Firefox",
	}
}

// assertTextCode unwraps the rich error and checks its text code.
func assertTextCode(t *testing.T, err error, code string) {
	t.Helper()

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a rich error, got %v", err)
	assert.Equal(t, code, richErr.TextCode)
}
