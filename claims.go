package accounts

import "encoding/json"

// Conventional claim types read and written by this package. Provider
// adapters map their native claim names onto these.
const (
	// ClaimSubject is the provider-scoped subject identifier.
	ClaimSubject = "sub"
	// ClaimEmail is the principal's email address.
	ClaimEmail = "email"
	// ClaimName is the display name.
	ClaimName = "name"
	// ClaimPicture is the profile picture URL.
	ClaimPicture = "picture"
	// ClaimPhoneNumber is the optional phone number.
	ClaimPhoneNumber = "phone_number"
	// ClaimProvider marks which external provider asserted the identity.
	ClaimProvider = "provider"
	// ClaimUserID carries the resolved local user id after authorization.
	ClaimUserID = "app_user_id"
	// ClaimRole carries one resolved role name per value.
	ClaimRole = "app_role"
	// ClaimPrincipal carries an opt-in serialized AppUser for callers that
	// round-trip the whole principal through the claims bag.
	ClaimPrincipal = "app_user"
)

// Claim is a single (type, value) assertion.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ClaimsBag is an ordered collection of claims. Duplicate types are allowed;
// Get returns the first match and GetAll every match, preserving order.
type ClaimsBag struct {
	claims []Claim
}

// NewClaimsBag creates a bag from the given claims, preserving order.
func NewClaimsBag(claims ...Claim) *ClaimsBag {
	bag := &ClaimsBag{}
	bag.claims = append(bag.claims, claims...)
	return bag
}

// Get returns the first value for the claim type, or "".
func (b *ClaimsBag) Get(claimType string) string {
	v, _ := b.Lookup(claimType)
	return v
}

// Lookup returns the first value for the claim type and whether it exists.
func (b *ClaimsBag) Lookup(claimType string) (string, bool) {
	if b == nil {
		return "", false
	}
	for _, c := range b.claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// GetAll returns every value for the claim type in order.
func (b *ClaimsBag) GetAll(claimType string) []string {
	if b == nil {
		return nil
	}
	var values []string
	for _, c := range b.claims {
		if c.Type == claimType {
			values = append(values, c.Value)
		}
	}
	return values
}

// Has reports whether the bag carries at least one claim of the type.
func (b *ClaimsBag) Has(claimType string) bool {
	_, ok := b.Lookup(claimType)
	return ok
}

// Add appends a claim, keeping any existing values of the same type.
func (b *ClaimsBag) Add(claimType, value string) *ClaimsBag {
	b.claims = append(b.claims, Claim{Type: claimType, Value: value})
	return b
}

// Replace removes all claims of the type and appends the given values.
func (b *ClaimsBag) Replace(claimType string, values ...string) *ClaimsBag {
	kept := b.claims[:0]
	for _, c := range b.claims {
		if c.Type != claimType {
			kept = append(kept, c)
		}
	}
	b.claims = kept
	for _, v := range values {
		b.claims = append(b.claims, Claim{Type: claimType, Value: v})
	}
	return b
}

// Claims returns a copy of the claims in order.
func (b *ClaimsBag) Claims() []Claim {
	if b == nil {
		return nil
	}
	out := make([]Claim, len(b.claims))
	copy(out, b.claims)
	return out
}

// Len returns the number of claims in the bag.
func (b *ClaimsBag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.claims)
}

// MarshalJSON serializes the bag as a flat claim list.
func (b *ClaimsBag) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.claims)
}

// UnmarshalJSON restores a bag from a flat claim list.
func (b *ClaimsBag) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &b.claims)
}
