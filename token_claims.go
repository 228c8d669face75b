package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims represents validated access token claims.
type AccessClaims interface {
	Subject() string
	UserID() string
	Email() string
	Roles() []string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenClaims is the concrete implementation of AccessClaims carried inside
// issued access tokens.
type TokenClaims struct {
	jwt.RegisteredClaims
	UID       string         `json:"uid,omitempty"`
	UserEmail string         `json:"email,omitempty"`
	RoleNames []string       `json:"roles,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"` // extension payload
}

// Verify interface compliance
var _ AccessClaims = (*TokenClaims)(nil)

// Subject returns the subject claim
func (c *TokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *TokenClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Email returns the email claim
func (c *TokenClaims) Email() string {
	return c.UserEmail
}

// Roles returns the role names carried by the token
func (c *TokenClaims) Roles() []string {
	return c.RoleNames
}

// HasRole checks if the token carries a specific role
func (c *TokenClaims) HasRole(role string) bool {
	for _, r := range c.RoleNames {
		if r == role {
			return true
		}
	}
	return false
}

// IsAtLeast checks if any carried role meets the minimum required level
func (c *TokenClaims) IsAtLeast(minRole string) bool {
	for _, r := range c.RoleNames {
		if RoleAtLeast(r, minRole) {
			return true
		}
	}
	return false
}

// ClaimsMetadata exposes metadata extensions for optional context enrichment.
func (c *TokenClaims) ClaimsMetadata() map[string]any {
	return c.Metadata
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *TokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
