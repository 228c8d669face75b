package accounts

import (
	"encoding/json"
	"strings"

	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// ToPrincipal converts an external claims assertion into an AppUser.
//
// A bag carrying a ClaimPrincipal payload short-circuits: the principal is
// deserialized from the claim and returned without touching the store.
// Otherwise the conventional identity claims are extracted and the email is
// lower-cased. Fails with ErrInvalidIdentity when the email is missing or
// malformed. No side effects.
func ToPrincipal(bag *ClaimsBag) (*AppUser, error) {
	if bag == nil || bag.Len() == 0 {
		return nil, ErrInvalidIdentity.Clone().
			WithMetadata(map[string]any{"reason": "empty claims"})
	}

	if payload, ok := bag.Lookup(ClaimPrincipal); ok {
		user := &AppUser{}
		if err := json.Unmarshal([]byte(payload), user); err != nil {
			return nil, errors.Wrap(err, ErrInvalidIdentity.Category, "unable to decode principal claim").
				WithTextCode(ErrInvalidIdentity.TextCode).
				WithCode(ErrInvalidIdentity.Code)
		}
		return user, nil
	}

	email, err := NormalizeEmail(bag.Get(ClaimEmail))
	if err != nil {
		return nil, err
	}

	user := &AppUser{
		Email:          email,
		ProviderKey:    bag.Get(ClaimSubject),
		ProviderType:   bag.Get(ClaimProvider),
		DisplayName:    bag.Get(ClaimName),
		ProfilePicture: bag.Get(ClaimPicture),
		Phone:          normalizePhone(bag.Get(ClaimPhoneNumber)),
	}

	if user.DisplayName == "" {
		user.DisplayName = email
	}

	return user, nil
}

// StampPrincipal writes the resolved user back onto the claims bag as a
// narrow session payload: the user id plus one role claim per role. Callers
// that need the full principal should rehydrate it from the store by id.
func StampPrincipal(bag *ClaimsBag, user *AppUser) {
	if bag == nil || user == nil {
		return
	}
	bag.Replace(ClaimUserID, user.ID.String())
	bag.Replace(ClaimRole, user.RoleNames()...)
}

// WithPrincipalClaim serializes the whole user into the bag's ClaimPrincipal
// claim so a later ToPrincipal call can short-circuit without a store query.
// The payload goes stale the moment the stored user changes; prefer
// StampPrincipal unless the round-trip is deliberate.
func WithPrincipalClaim(bag *ClaimsBag, user *AppUser) error {
	if bag == nil || user == nil {
		return ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"reason": "nil claims or user"})
	}

	payload, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to encode principal claim")
	}

	bag.Replace(ClaimPrincipal, string(payload))
	return nil
}

// NormalizeEmail lower-cases and validates an email address. Invite and user
// lookups assume emails were stored through this path.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrInvalidIdentity.Clone().
			WithMetadata(map[string]any{"reason": "missing email claim"})
	}

	if err := is.Email.Validate(email); err != nil {
		return "", ErrInvalidIdentity.Clone().
			WithMetadata(map[string]any{"email": email, "reason": err.Error()})
	}

	return email, nil
}

// normalizePhone formats a phone claim as E.164. Parsing is best-effort and
// unparseable input is dropped; the phone is optional profile data.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	num, err := phonenumbers.Parse(raw, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}
