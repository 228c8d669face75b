package oidc

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	accounts "github.com/goliatone/go-accounts"
)

// IdentityClaims holds the standard OIDC identity claims this library
// consumes from a validated ID token.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
	Picture       string `json:"picture"`
	PhoneNumber   string `json:"phone_number"`
}

// ClaimsBag maps the identity claims onto the conventional claim types the
// accounts package reads. Empty values are omitted so the Authorizer's own
// validation decides what is required.
func (c *IdentityClaims) ClaimsBag(providerType string) *accounts.ClaimsBag {
	bag := accounts.NewClaimsBag()

	addClaim(bag, accounts.ClaimProvider, providerType)
	addClaim(bag, accounts.ClaimSubject, c.Subject)
	addClaim(bag, accounts.ClaimEmail, c.Email)
	addClaim(bag, accounts.ClaimName, c.displayName())
	addClaim(bag, accounts.ClaimPicture, c.Picture)
	addClaim(bag, accounts.ClaimPhoneNumber, c.PhoneNumber)

	return bag
}

func (c *IdentityClaims) displayName() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return strings.TrimSpace(c.Nickname)
}

func addClaim(bag *accounts.ClaimsBag, claimType, value string) {
	if value = strings.TrimSpace(value); value != "" {
		bag.Add(claimType, value)
	}
}
