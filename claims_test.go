package accounts_test

import (
	"encoding/json"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsBagOrderAndLookup(t *testing.T) {
	bag := accounts.NewClaimsBag(
		accounts.Claim{Type: accounts.ClaimRole, Value: "Member"},
		accounts.Claim{Type: accounts.ClaimEmail, Value: "user@example.com"},
		accounts.Claim{Type: accounts.ClaimRole, Value: "Owner"},
	)

	assert.Equal(t, 3, bag.Len())
	assert.Equal(t, "Member", bag.Get(accounts.ClaimRole))
	assert.Equal(t, []string{"Member", "Owner"}, bag.GetAll(accounts.ClaimRole))
	assert.True(t, bag.Has(accounts.ClaimEmail))
	assert.False(t, bag.Has(accounts.ClaimPicture))

	value, ok := bag.Lookup(accounts.ClaimEmail)
	assert.True(t, ok)
	assert.Equal(t, "user@example.com", value)

	_, ok = bag.Lookup(accounts.ClaimSubject)
	assert.False(t, ok)
}

func TestClaimsBagNilSafety(t *testing.T) {
	var bag *accounts.ClaimsBag

	assert.Equal(t, 0, bag.Len())
	assert.Equal(t, "", bag.Get(accounts.ClaimEmail))
	assert.Nil(t, bag.GetAll(accounts.ClaimEmail))
	assert.Nil(t, bag.Claims())
	assert.False(t, bag.Has(accounts.ClaimEmail))
}

func TestClaimsBagReplace(t *testing.T) {
	bag := accounts.NewClaimsBag(
		accounts.Claim{Type: accounts.ClaimRole, Value: "Visitor"},
		accounts.Claim{Type: accounts.ClaimEmail, Value: "user@example.com"},
		accounts.Claim{Type: accounts.ClaimRole, Value: "Member"},
	)

	bag.Replace(accounts.ClaimRole, "Owner", "Administrator")

	assert.Equal(t, []string{"Owner", "Administrator"}, bag.GetAll(accounts.ClaimRole))
	assert.Equal(t, "user@example.com", bag.Get(accounts.ClaimEmail))
	assert.Equal(t, 3, bag.Len())

	bag.Replace(accounts.ClaimRole)
	assert.False(t, bag.Has(accounts.ClaimRole))
	assert.Equal(t, 1, bag.Len())
}

func TestClaimsBagAddKeepsDuplicates(t *testing.T) {
	bag := accounts.NewClaimsBag()
	bag.Add(accounts.ClaimRole, "Member").Add(accounts.ClaimRole, "Owner")

	assert.Equal(t, []string{"Member", "Owner"}, bag.GetAll(accounts.ClaimRole))
}

func TestClaimsBagJSONRoundTrip(t *testing.T) {
	bag := accounts.NewClaimsBag(
		accounts.Claim{Type: accounts.ClaimEmail, Value: "user@example.com"},
		accounts.Claim{Type: accounts.ClaimRole, Value: "Member"},
		accounts.Claim{Type: accounts.ClaimRole, Value: "Owner"},
	)

	payload, err := json.Marshal(bag)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"email","value":"user@example.com"},
		{"type":"app_role","value":"Member"},
		{"type":"app_role","value":"Owner"}
	]`, string(payload))

	restored := &accounts.ClaimsBag{}
	require.NoError(t, json.Unmarshal(payload, restored))
	assert.Equal(t, bag.Claims(), restored.Claims())
}

func TestToPrincipal(t *testing.T) {
	t.Run("maps conventional claims", func(t *testing.T) {
		bag := accounts.NewClaimsBag(
			accounts.Claim{Type: accounts.ClaimSubject, Value: "google-oauth2|110248495921238986420"},
			accounts.Claim{Type: accounts.ClaimProvider, Value: "google-oauth2"},
			accounts.Claim{Type: accounts.ClaimEmail, Value: "Jane.Doe@Example.COM"},
			accounts.Claim{Type: accounts.ClaimName, Value: "Jane Doe"},
			accounts.Claim{Type: accounts.ClaimPicture, Value: "https://cdn.example.com/jane.png"},
			accounts.Claim{Type: accounts.ClaimPhoneNumber, Value: "+1 650-253-0000"},
		)

		user, err := accounts.ToPrincipal(bag)
		require.NoError(t, err)

		assert.Equal(t, "jane.doe@example.com", user.Email)
		assert.Equal(t, "google-oauth2|110248495921238986420", user.ProviderKey)
		assert.Equal(t, "google-oauth2", user.ProviderType)
		assert.Equal(t, "Jane Doe", user.DisplayName)
		assert.Equal(t, "https://cdn.example.com/jane.png", user.ProfilePicture)
		assert.Equal(t, "+16502530000", user.Phone)
	})

	t.Run("display name falls back to email", func(t *testing.T) {
		bag := accounts.NewClaimsBag(
			accounts.Claim{Type: accounts.ClaimEmail, Value: "jane@example.com"},
		)

		user, err := accounts.ToPrincipal(bag)
		require.NoError(t, err)
		assert.Equal(t, "jane@example.com", user.DisplayName)
	})

	t.Run("unparseable phone is dropped", func(t *testing.T) {
		bag := accounts.NewClaimsBag(
			accounts.Claim{Type: accounts.ClaimEmail, Value: "jane@example.com"},
			accounts.Claim{Type: accounts.ClaimPhoneNumber, Value: "call me maybe"},
		)

		user, err := accounts.ToPrincipal(bag)
		require.NoError(t, err)
		assert.Equal(t, "", user.Phone)
	})

	t.Run("nil bag", func(t *testing.T) {
		_, err := accounts.ToPrincipal(nil)
		require.Error(t, err)
		assertTextCode(t, err, accounts.TextCodeInvalidIdentity)
	})

	t.Run("empty bag", func(t *testing.T) {
		_, err := accounts.ToPrincipal(accounts.NewClaimsBag())
		require.Error(t, err)
		assertTextCode(t, err, accounts.TextCodeInvalidIdentity)
	})

	t.Run("missing email", func(t *testing.T) {
		bag := accounts.NewClaimsBag(
			accounts.Claim{Type: accounts.ClaimName, Value: "Jane Doe"},
		)

		_, err := accounts.ToPrincipal(bag)
		require.Error(t, err)
		assertTextCode(t, err, accounts.TextCodeInvalidIdentity)
	})

	t.Run("malformed email", func(t *testing.T) {
		bag := accounts.NewClaimsBag(
			accounts.Claim{Type: accounts.ClaimEmail, Value: "not-an-email"},
		)

		_, err := accounts.ToPrincipal(bag)
		require.Error(t, err)
		assertTextCode(t, err, accounts.TextCodeInvalidIdentity)
	})

	t.Run("principal claim short-circuits", func(t *testing.T) {
		source := &accounts.AppUser{
			ID:          uuid.New(),
			Email:       "jane@example.com",
			DisplayName: "Jane Doe",
		}

		bag := accounts.NewClaimsBag()
		require.NoError(t, accounts.WithPrincipalClaim(bag, source))

		user, err := accounts.ToPrincipal(bag)
		require.NoError(t, err)
		assert.Equal(t, source.ID, user.ID)
		assert.Equal(t, source.Email, user.Email)
		assert.Equal(t, source.DisplayName, user.DisplayName)
	})

	t.Run("garbage principal claim", func(t *testing.T) {
		bag := accounts.NewClaimsBag(
			accounts.Claim{Type: accounts.ClaimPrincipal, Value: "{not json"},
		)

		_, err := accounts.ToPrincipal(bag)
		require.Error(t, err)
		assertTextCode(t, err, accounts.TextCodeInvalidIdentity)
	})
}

func TestStampPrincipal(t *testing.T) {
	user := &accounts.AppUser{
		ID:    uuid.New(),
		Email: "jane@example.com",
		Roles: []*accounts.Role{
			{Name: accounts.RoleOwner},
			{Name: accounts.RoleMember},
		},
	}

	bag := accounts.NewClaimsBag(
		accounts.Claim{Type: accounts.ClaimEmail, Value: "jane@example.com"},
		accounts.Claim{Type: accounts.ClaimRole, Value: "stale-role"},
	)

	accounts.StampPrincipal(bag, user)

	assert.Equal(t, user.ID.String(), bag.Get(accounts.ClaimUserID))
	assert.Equal(t, []string{accounts.RoleOwner, accounts.RoleMember}, bag.GetAll(accounts.ClaimRole))
	assert.Equal(t, "jane@example.com", bag.Get(accounts.ClaimEmail))

	// nil arguments are a no-op
	accounts.StampPrincipal(nil, user)
	accounts.StampPrincipal(bag, nil)
}

func TestWithPrincipalClaim(t *testing.T) {
	err := accounts.WithPrincipalClaim(nil, &accounts.AppUser{})
	assertTextCode(t, err, accounts.TextCodeInvalidArgument)

	err = accounts.WithPrincipalClaim(accounts.NewClaimsBag(), nil)
	assertTextCode(t, err, accounts.TextCodeInvalidArgument)
}

func TestNormalizeEmail(t *testing.T) {
	email, err := accounts.NormalizeEmail("  Jane.Doe@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", email)

	_, err = accounts.NormalizeEmail("   ")
	assertTextCode(t, err, accounts.TextCodeInvalidIdentity)

	_, err = accounts.NormalizeEmail("nope")
	assertTextCode(t, err, accounts.TextCodeInvalidIdentity)
}
