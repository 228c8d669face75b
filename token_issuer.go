package accounts

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

const (
	// RefreshTokenByteLength is the entropy of an opaque refresh token before
	// encoding.
	RefreshTokenByteLength = 32

	// RedeemedAccessTokenDuration is the fixed lifetime of access tokens
	// minted through refresh-token redemption.
	RedeemedAccessTokenDuration = 15 * time.Minute

	// DefaultMaxActiveTokens caps valid refresh tokens per user when the
	// configuration does not say otherwise.
	DefaultMaxActiveTokens = 10
)

// TokenIssuer mints HS256 access tokens and manages the refresh-token
// lifecycle: a per-user ceiling on valid tokens and single-use rotation on
// redemption.
type TokenIssuer struct {
	repo            RepositoryManager
	signingKey      []byte
	issuer          string
	audience        jwt.ClaimStrings
	maxActiveTokens int
	logger          Logger
	activitySink    ActivitySink
	now             func() time.Time
}

var _ TokenClient = (*TokenIssuer)(nil)

// NewTokenIssuer returns a new TokenIssuer
func NewTokenIssuer(repo RepositoryManager, opts Config) *TokenIssuer {
	maxActive := opts.GetMaxActiveTokens()
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveTokens
	}

	return &TokenIssuer{
		repo:            repo,
		signingKey:      []byte(opts.GetSigningKey()),
		issuer:          opts.GetIssuer(),
		audience:        opts.GetAudience(),
		maxActiveTokens: maxActive,
		logger:          defLogger{},
		activitySink:    noopActivitySink{},
		now:             time.Now,
	}
}

func (t *TokenIssuer) WithLogger(logger Logger) *TokenIssuer {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// WithClock overrides the time source for iat/exp stamps and expiry checks,
// mostly for tests.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	if now != nil {
		t.now = now
	}
	return t
}

// WithActivitySink configures an ActivitySink for emitting token events.
func (t *TokenIssuer) WithActivitySink(sink ActivitySink) *TokenIssuer {
	t.activitySink = normalizeActivitySink(sink)
	return t
}

// IssueAccessToken builds a signed HS256 token carrying the user's id, email,
// and role names. Reads the clock and signing key, never the store.
func (t *TokenIssuer) IssueAccessToken(user *AppUser, duration time.Duration) (string, error) {
	if user == nil {
		return "", ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"reason": "nil user"})
	}

	if duration <= 0 {
		return "", ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"reason": "duration must be positive"})
	}

	now := t.now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID.String(),
			Audience:  t.audienceCopy(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
		UID:       user.ID.String(),
		UserEmail: user.Email,
		RoleNames: user.RoleNames(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(t.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign access token")
	}

	return signed, nil
}

// CreateRefreshToken stores a new opaque token for the user behind the email.
// The valid-token ceiling is enforced as a soft limit: the count and insert
// are separate statements, concurrent callers can transiently overshoot.
func (t *TokenIssuer) CreateRefreshToken(ctx context.Context, email string, duration time.Duration) (*RefreshToken, error) {
	if duration <= 0 {
		return nil, ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"reason": "duration must be positive"})
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	user, err := t.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNotFound.Clone().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	active, err := t.repo.RefreshTokens().CountValidForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if active >= t.maxActiveTokens {
		t.logger.Warn("refresh token ceiling reached", "email", email, "active", active)
		return nil, ErrTooManyActiveTokens.Clone().
			WithMetadata(map[string]any{
				"email":  email,
				"active": active,
				"limit":  t.maxActiveTokens,
			})
	}

	opaque, err := generateOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := t.now()
	record := &RefreshToken{
		UserID:            user.ID,
		Token:             opaque,
		DurationInSeconds: int64(duration / time.Second),
		UtcExpiresOn:      now.Add(duration),
		IsValid:           true,
		CreatedBy:         user.Email,
		UpdatedBy:         user.Email,
		UtcCreatedOn:      now,
		UtcUpdatedOn:      now,
	}

	created, err := t.repo.RefreshTokens().Create(ctx, record)
	if err != nil {
		return nil, err
	}

	t.emitTokenEvent(ctx, ActivityEventTokenIssued, user, map[string]any{
		"expires_on": created.UtcExpiresOn,
	})

	return created, nil
}

// RedeemRefreshToken swaps a refresh token for a fresh short-lived access
// token. Each refresh token redeems exactly once: the row is invalidated with
// a version-guarded update, and losing that race reads as revoked.
func (t *TokenIssuer) RedeemRefreshToken(ctx context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"reason": "empty refresh token"})
	}

	token, err := t.repo.RefreshTokens().GetByToken(ctx, tokenString)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", ErrNotFound.Clone().
				WithMetadata(map[string]any{"reason": "unknown refresh token"})
		}
		return "", err
	}

	if !token.IsValid {
		t.logger.Warn("refresh token replayed after invalidation", "user_id", token.UserID)
		return "", ErrTokenRevoked.Clone().
			WithMetadata(map[string]any{"user_id": token.UserID.String()})
	}

	now := t.now()
	if token.ExpiredAt(now) {
		return "", ErrTokenExpired.Clone().
			WithMetadata(map[string]any{
				"user_id":    token.UserID.String(),
				"expired_on": token.UtcExpiresOn,
			})
	}

	// Roles may have changed since the refresh token was minted; the new
	// access token must carry the current set.
	user, err := t.repo.Users().GetByIdentifier(ctx, token.UserID.String(), IncludeAccount(), IncludeRoles())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", ErrNotFound.Clone().
				WithMetadata(map[string]any{"user_id": token.UserID.String()})
		}
		return "", err
	}

	access, err := t.IssueAccessToken(user, RedeemedAccessTokenDuration)
	if err != nil {
		return "", err
	}

	if _, err := t.repo.RefreshTokens().Invalidate(ctx, token, now, user.Email); err != nil {
		if repository.IsRecordNotFound(err) {
			return "", ErrTokenRevoked.Clone().
				WithMetadata(map[string]any{"user_id": token.UserID.String()})
		}
		return "", err
	}

	t.emitTokenEvent(ctx, ActivityEventTokenRedeemed, user, nil)

	return access, nil
}

// RevokeRefreshTokens invalidates every valid refresh token for the user,
// freeing the ceiling for new ones. Returns how many were revoked.
func (t *TokenIssuer) RevokeRefreshTokens(ctx context.Context, email string) (int, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return 0, err
	}

	user, err := t.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return 0, ErrNotFound.Clone().
				WithMetadata(map[string]any{"email": email})
		}
		return 0, err
	}

	revoked, err := t.repo.RefreshTokens().RevokeAllForUser(ctx, user.ID, t.now(), user.Email)
	if err != nil {
		return 0, err
	}

	t.emitTokenEvent(ctx, ActivityEventTokenRevoked, user, map[string]any{
		"revoked": revoked,
	})

	return revoked, nil
}

// ValidateAccessToken parses and verifies a token this issuer signed,
// returning structured claims.
func (t *TokenIssuer) ValidateAccessToken(tokenString string) (AccessClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if t.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			t.logger.Error("access token has unexpected signing method", "alg", tk.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", tk.Header["alg"])
		}
		return t.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		t.logger.Error("access token claims could not be decoded")
		return nil, ErrTokenMalformed
	}

	if !t.acceptsAudience(claims.Audience) {
		return nil, ErrTokenMalformed.Clone().
			WithMetadata(map[string]any{"reason": "audience mismatch"})
	}

	return claims, nil
}

// acceptsAudience reports whether the token's aud claim carries at least one
// of the configured audiences. An issuer with no audience accepts any.
func (t *TokenIssuer) acceptsAudience(aud jwt.ClaimStrings) bool {
	if len(t.audience) == 0 {
		return true
	}
	for _, want := range t.audience {
		for _, got := range aud {
			if got == want {
				return true
			}
		}
	}
	return false
}

func (t *TokenIssuer) audienceCopy() jwt.ClaimStrings {
	if len(t.audience) == 0 {
		return nil
	}
	aud := make(jwt.ClaimStrings, len(t.audience))
	copy(aud, t.audience)
	return aud
}

func (t *TokenIssuer) emitTokenEvent(ctx context.Context, eventType ActivityEventType, user *AppUser, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: user.ID.String(), Type: "app_user"},
		UserID:     user.ID.String(),
		Email:      user.Email,
		Metadata:   metadata,
		OccurredAt: t.now(),
	}

	if err := t.activitySink.Record(ctx, event); err != nil {
		t.logger.Warn("activity sink failure", "event", eventType, "error", err)
	}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, RefreshTokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "unable to generate refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
