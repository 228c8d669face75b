package accounts

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidIdentity   = "accounts_invalid_identity"
	TextCodeInvalidArgument   = "accounts_invalid_argument"
	TextCodeNotFound          = "accounts_not_found"
	TextCodeInvalidInvitation = "accounts_invalid_invitation"
	TextCodeAccountExpired    = "accounts_account_expired"
	TextCodeTokenRevoked      = "accounts_token_revoked"
	TextCodeTokenExpired      = "accounts_token_expired"
	TextCodeTokenMalformed    = "accounts_token_malformed"
	TextCodeTooManyTokens     = "accounts_too_many_active_tokens"
	TextCodeUnauthenticated   = "accounts_unauthenticated"
	TextCodeDuplicateInvite   = "accounts_duplicate_invitation"
)

// ErrInvalidIdentity is returned when the incoming claims are missing or
// carry no usable email.
var ErrInvalidIdentity = errors.New("identity is missing or has no valid email", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidIdentity).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidArgument is returned for nil users, non-positive durations, and
// other malformed caller input.
var ErrInvalidArgument = errors.New("invalid argument", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidArgument).
	WithCode(errors.CodeBadRequest)

// ErrNotFound is returned when a referenced user, role, account type, or
// refresh token does not exist.
var ErrNotFound = errors.New("record not found", errors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidInvitation is returned when an invitation is missing its account
// or role linkage.
var ErrInvalidInvitation = errors.New("invitation is missing account or role", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidInvitation).
	WithCode(errors.CodeBadRequest)

// ErrAccountExpired is returned when the account or user active-until date
// has passed.
var ErrAccountExpired = errors.New("account has expired", errors.CategoryAuth).
	WithTextCode(TextCodeAccountExpired).
	WithCode(errors.CodeForbidden)

// ErrTokenRevoked is returned when a refresh token is redeemed after it was
// already used or revoked.
var ErrTokenRevoked = errors.New("refresh token has been revoked", errors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a token is past its expiration.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token cannot be parsed or verified.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTooManyActiveTokens is returned when the refresh token ceiling for a
// user has been reached. Callers must revoke old tokens before retrying.
var ErrTooManyActiveTokens = errors.New("too many active refresh tokens", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyTokens).
	WithCode(errors.CodeConflict)

// ErrUnauthenticated is returned when an email has no existing user, no
// pending invitation, and no pre-authorization entry.
var ErrUnauthenticated = errors.New("no account, invitation, or pre-authorization for identity", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrDuplicateInvitation is returned when an invitation or pre-authorization
// already exists for the target email.
var ErrDuplicateInvitation = errors.New("an invitation already exists for this email", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateInvite).
	WithCode(errors.CodeConflict)

// IsAccountExpiredError reports whether err carries the account expired code.
func IsAccountExpiredError(err error) bool {
	return hasTextCode(err, TextCodeAccountExpired)
}

// IsUnauthenticatedError reports whether err carries the unauthenticated code.
func IsUnauthenticatedError(err error) bool {
	return hasTextCode(err, TextCodeUnauthenticated)
}

// IsTokenExpiredError reports whether err carries the token expired code.
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError reports whether err carries the malformed token code.
func IsMalformedError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}
