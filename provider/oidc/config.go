package oidc

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config holds provider configuration for ID token validation.
type Config struct {
	// Issuer is the provider issuer URL (e.g., "https://accounts.example.com").
	Issuer string

	// Audience is the client/API identifier(s) to validate against.
	Audience []string

	// JWKSURL overrides the JWKS endpoint (optional).
	// Default: "{Issuer}/.well-known/jwks.json".
	JWKSURL string

	// ProviderType marks which provider asserted the identity. It is written
	// into the claims bag so provisioning can record the external account
	// origin. Default: "oidc".
	ProviderType string

	// RefreshInterval is how often to refresh the cached JWKS keys.
	// Default: 1 hour.
	RefreshInterval time.Duration

	// RefreshTimeout bounds a single JWKS refresh request.
	// Default: 10 seconds.
	RefreshTimeout time.Duration

	// Logger receives JWKS refresh failures. Optional.
	Logger Logger

	// ContextFunc provides the context for the background JWKS refresh.
	// Default: context.Background.
	ContextFunc func() context.Context
}

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(format string, args ...any)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(issuer string, audience []string) Config {
	return Config{
		Issuer:          issuer,
		Audience:        audience,
		RefreshInterval: time.Hour,
		RefreshTimeout:  10 * time.Second,
	}
}

func (c Config) issuerURL() string {
	issuer := strings.TrimSpace(c.Issuer)
	if issuer == "" {
		return ""
	}
	return strings.TrimSuffix(issuer, "/")
}

func (c Config) jwksURL() string {
	if url := strings.TrimSpace(c.JWKSURL); url != "" {
		return url
	}

	issuer := c.issuerURL()
	if issuer == "" {
		return ""
	}

	return fmt.Sprintf("%s/.well-known/jwks.json", issuer)
}

func (c Config) providerType() string {
	if p := strings.TrimSpace(c.ProviderType); p != "" {
		return p
	}
	return "oidc"
}
