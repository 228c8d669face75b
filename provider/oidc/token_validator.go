package oidc

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	accounts "github.com/goliatone/go-accounts"
)

// TokenValidator verifies provider-issued ID tokens against the provider's
// JWKS and maps the standard identity claims into a claims bag the accounts
// Authorizer can consume.
type TokenValidator struct {
	config Config
	jwks   *keyfunc.JWKS
}

// NewTokenValidator fetches the provider JWKS and keeps it refreshed in the
// background until Close is called.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	if cfg.issuerURL() == "" {
		return nil, fmt.Errorf("oidc: issuer is required")
	}

	jwksURL := cfg.jwksURL()
	if jwksURL == "" {
		return nil, fmt.Errorf("oidc: unable to resolve JWKS URL")
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval == 0 {
		refreshInterval = DefaultConfig("", nil).RefreshInterval
	}

	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout == 0 {
		refreshTimeout = DefaultConfig("", nil).RefreshTimeout
	}

	ctx := context.Background()
	if cfg.ContextFunc != nil {
		ctx = cfg.ContextFunc()
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			if cfg.Logger != nil {
				cfg.Logger.Error("oidc JWKS refresh failed", "url", jwksURL, "error", err)
			}
		},
		RefreshInterval:   refreshInterval,
		RefreshTimeout:    refreshTimeout,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc: failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &TokenValidator{config: cfg, jwks: jwks}, nil
}

// Close stops the background JWKS refresh.
func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// ValidateIDToken parses and verifies a raw ID token, returning its identity
// claims. Signature, expiry, issuer, and audience are all enforced.
func (v *TokenValidator) ValidateIDToken(tokenString string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
	)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, accounts.ErrTokenMalformed.Clone().
			WithMetadata(map[string]any{"provider": v.config.providerType()})
	}

	if !sameIssuer(claims.Issuer, v.config.issuerURL()) {
		return nil, accounts.ErrTokenMalformed.Clone().
			WithMetadata(map[string]any{
				"provider": v.config.providerType(),
				"reason":   "issuer mismatch",
			})
	}

	if !v.acceptsAudience(claims.Audience) {
		return nil, accounts.ErrTokenMalformed.Clone().
			WithMetadata(map[string]any{
				"provider": v.config.providerType(),
				"reason":   "audience mismatch",
			})
	}

	return claims, nil
}

// ClaimsFromToken validates the raw ID token and returns a claims bag ready
// for accounts.Authorizer.Authorize.
func (v *TokenValidator) ClaimsFromToken(tokenString string) (*accounts.ClaimsBag, error) {
	claims, err := v.ValidateIDToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims.ClaimsBag(v.config.providerType()), nil
}

// acceptsAudience reports whether the token's aud claim carries at least one
// of the configured audiences. An empty configuration accepts any audience.
func (v *TokenValidator) acceptsAudience(aud jwt.ClaimStrings) bool {
	if len(v.config.Audience) == 0 {
		return true
	}
	for _, want := range v.config.Audience {
		for _, got := range aud {
			if got == want {
				return true
			}
		}
	}
	return false
}

// sameIssuer compares issuers ignoring a trailing slash; providers disagree
// on whether iss carries one.
func sameIssuer(got, want string) bool {
	return strings.TrimSuffix(got, "/") == strings.TrimSuffix(want, "/")
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	clone := accounts.ErrTokenMalformed.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = accounts.ErrTokenExpired.Clone()
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"cause": err.Error(),
	})
}
