package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AppUser is the principal record created on first successful authorization.
type AppUser struct {
	bun.BaseModel  `bun:"table:app_users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	ProviderKey    string         `bun:"provider_key,notnull" json:"provider_key,omitempty"`
	ProviderType   string         `bun:"provider_type,notnull" json:"provider_type,omitempty"`
	DisplayName    string         `bun:"display_name" json:"display_name,omitempty"`
	ProfilePicture string         `bun:"profile_picture" json:"profile_picture,omitempty"`
	Phone          string         `bun:"phone_number" json:"phone_number,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	AccountID      uuid.UUID      `bun:"account_id,nullzero,type:uuid" json:"account_id,omitempty"`
	Account        *Account       `bun:"rel:has-one,join:account_id=id" json:"account,omitempty"`
	Roles          []*Role        `bun:"m2m:app_user_roles,join:AppUser=Role" json:"roles,omitempty"`
	UtcActiveUntil *time.Time     `bun:"utc_active_until,nullzero" json:"utc_active_until,omitempty"`
	UtcLastLogin   *time.Time     `bun:"utc_last_login,nullzero" json:"utc_last_login,omitempty"`
	CreatedBy      string         `bun:"created_by" json:"created_by,omitempty"`
	UpdatedBy      string         `bun:"updated_by" json:"updated_by,omitempty"`
	UtcCreatedOn   time.Time      `bun:"utc_created_on,nullzero,default:current_timestamp" json:"utc_created_on,omitempty"`
	UtcUpdatedOn   time.Time      `bun:"utc_updated_on,nullzero,default:current_timestamp" json:"utc_updated_on,omitempty"`
	Version        int64          `bun:"version,notnull,default:1" json:"version,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (u *AppUser) AddMetadata(key string, val any) *AppUser {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// HasRole reports whether the user holds the named role.
func (u *AppUser) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r != nil && r.Name == name {
			return true
		}
	}
	return false
}

// RoleNames returns the names of the user's roles, preserving load order.
func (u *AppUser) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		if r != nil {
			names = append(names, r.Name)
		}
	}
	return names
}

// ActiveWindowExpired reports whether the user's own active-until date has
// passed. A nil UtcActiveUntil never expires.
func (u *AppUser) ActiveWindowExpired(now time.Time) bool {
	return u.UtcActiveUntil != nil && u.UtcActiveUntil.Before(now)
}

// Account is a tenant/billing unit owned by a single email.
type Account struct {
	bun.BaseModel     `bun:"table:accounts,alias:acc"`
	ID                uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Owner             string       `bun:"owner,notnull,unique" json:"owner,omitempty"`
	Name              string       `bun:"name" json:"name,omitempty"`
	AccountTypeID     uuid.UUID    `bun:"account_type_id,nullzero,type:uuid" json:"account_type_id,omitempty"`
	AccountType       *AccountType `bun:"rel:has-one,join:account_type_id=id" json:"account_type,omitempty"`
	UtcExpirationDate *time.Time   `bun:"utc_expiration_date,nullzero" json:"utc_expiration_date,omitempty"`
	CreatedBy         string       `bun:"created_by" json:"created_by,omitempty"`
	UpdatedBy         string       `bun:"updated_by" json:"updated_by,omitempty"`
	UtcCreatedOn      time.Time    `bun:"utc_created_on,nullzero,default:current_timestamp" json:"utc_created_on,omitempty"`
	UtcUpdatedOn      time.Time    `bun:"utc_updated_on,nullzero,default:current_timestamp" json:"utc_updated_on,omitempty"`
	Version           int64        `bun:"version,notnull,default:1" json:"version,omitempty"`
}

// Expired reports whether the account's expiration date has passed. A nil
// UtcExpirationDate never expires.
func (a *Account) Expired(now time.Time) bool {
	return a.UtcExpirationDate != nil && a.UtcExpirationDate.Before(now)
}

// AccountType is a named tier, e.g. "Free".
type AccountType struct {
	bun.BaseModel `bun:"table:account_types,alias:act"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string    `bun:"name,notnull,unique" json:"name,omitempty"`
	CreatedBy     string    `bun:"created_by" json:"created_by,omitempty"`
	UpdatedBy     string    `bun:"updated_by" json:"updated_by,omitempty"`
	UtcCreatedOn  time.Time `bun:"utc_created_on,nullzero,default:current_timestamp" json:"utc_created_on,omitempty"`
	UtcUpdatedOn  time.Time `bun:"utc_updated_on,nullzero,default:current_timestamp" json:"utc_updated_on,omitempty"`
	Version       int64     `bun:"version,notnull,default:1" json:"version,omitempty"`
}

// Role is a named permission grouping.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string    `bun:"name,notnull,unique" json:"name,omitempty"`
	Description   string    `bun:"description" json:"description,omitempty"`
	CreatedBy     string    `bun:"created_by" json:"created_by,omitempty"`
	UpdatedBy     string    `bun:"updated_by" json:"updated_by,omitempty"`
	UtcCreatedOn  time.Time `bun:"utc_created_on,nullzero,default:current_timestamp" json:"utc_created_on,omitempty"`
	UtcUpdatedOn  time.Time `bun:"utc_updated_on,nullzero,default:current_timestamp" json:"utc_updated_on,omitempty"`
	Version       int64     `bun:"version,notnull,default:1" json:"version,omitempty"`
}

// AppUserRole links a user to a role. A user may hold multiple roles.
type AppUserRole struct {
	bun.BaseModel `bun:"table:app_user_roles,alias:aur"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AppUserID     uuid.UUID `bun:"app_user_id,notnull,type:uuid" json:"app_user_id,omitempty"`
	AppUser       *AppUser  `bun:"rel:belongs-to,join:app_user_id=id" json:"app_user,omitempty"`
	RoleID        uuid.UUID `bun:"role_id,notnull,type:uuid" json:"role_id,omitempty"`
	Role          *Role     `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	CreatedBy     string    `bun:"created_by" json:"created_by,omitempty"`
	UpdatedBy     string    `bun:"updated_by" json:"updated_by,omitempty"`
	UtcCreatedOn  time.Time `bun:"utc_created_on,nullzero,default:current_timestamp" json:"utc_created_on,omitempty"`
	UtcUpdatedOn  time.Time `bun:"utc_updated_on,nullzero,default:current_timestamp" json:"utc_updated_on,omitempty"`
	Version       int64     `bun:"version,notnull,default:1" json:"version,omitempty"`
}

// InviteToAccount is a pending grant into an existing account.
type InviteToAccount struct {
	bun.BaseModel  `bun:"table:invites_to_account,alias:ita"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	AccountID      uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account        *Account   `bun:"rel:has-one,join:account_id=id" json:"account,omitempty"`
	RoleID         uuid.UUID  `bun:"role_id,notnull,type:uuid" json:"role_id,omitempty"`
	Role           *Role      `bun:"rel:has-one,join:role_id=id" json:"role,omitempty"`
	UtcExpiration  time.Time  `bun:"utc_expiration,nullzero" json:"utc_expiration,omitempty"`
	UtcAcceptedOn  *time.Time `bun:"utc_accepted_on,nullzero" json:"utc_accepted_on,omitempty"`
	UtcRejectedOn  *time.Time `bun:"utc_rejected_on,nullzero" json:"utc_rejected_on,omitempty"`
	RejectedReason string     `bun:"rejected_reason" json:"rejected_reason,omitempty"`
	CreatedBy      string     `bun:"created_by" json:"created_by,omitempty"`
	UpdatedBy      string     `bun:"updated_by" json:"updated_by,omitempty"`
	UtcCreatedOn   time.Time  `bun:"utc_created_on,nullzero,default:current_timestamp" json:"utc_created_on,omitempty"`
	UtcUpdatedOn   time.Time  `bun:"utc_updated_on,nullzero,default:current_timestamp" json:"utc_updated_on,omitempty"`
	Version        int64      `bun:"version,notnull,default:1" json:"version,omitempty"`
}

// Expired reports whether the invite's expiration has passed. A zero
// UtcExpiration never expires.
func (i *InviteToAccount) Expired(now time.Time) bool {
	return !i.UtcExpiration.IsZero() && i.UtcExpiration.Before(now)
}

// InviteToApplication is a pending application-level grant. Consuming it
// creates a brand-new account owned by the invitee.
type InviteToApplication struct {
	bun.BaseModel `bun:"table:invites_to_application,alias:itp"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string       `bun:"email,notnull,unique" json:"email,omitempty"`
	AccountTypeID uuid.UUID    `bun:"account_type_id,notnull,type:uuid" json:"account_type_id,omitempty"`
	AccountType   *AccountType `bun:"rel:has-one,join:account_type_id=id" json:"account_type,omitempty"`
	UtcExpiration time.Time    `bun:"utc_expiration,nullzero" json:"utc_expiration,omitempty"`
	UtcAcceptedOn *time.Time   `bun:"utc_accepted_on,nullzero" json:"utc_accepted_on,omitempty"`
	CreatedBy     string       `bun:"created_by" json:"created_by,omitempty"`
	UpdatedBy     string       `bun:"updated_by" json:"updated_by,omitempty"`
	UtcCreatedOn  time.Time    `bun:"utc_created_on,nullzero,default:current_timestamp" json:"utc_created_on,omitempty"`
	UtcUpdatedOn  time.Time    `bun:"utc_updated_on,nullzero,default:current_timestamp" json:"utc_updated_on,omitempty"`
	Version       int64        `bun:"version,notnull,default:1" json:"version,omitempty"`
}

// Expired reports whether the invite's expiration has passed.
func (i *InviteToApplication) Expired(now time.Time) bool {
	return !i.UtcExpiration.IsZero() && i.UtcExpiration.Before(now)
}

// PreAuthorizedUser is an allow-list entry granting first-login provisioning
// without an explicit invitation.
type PreAuthorizedUser struct {
	bun.BaseModel `bun:"table:pre_authorized_users,alias:pau"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string       `bun:"email,notnull,unique" json:"email,omitempty"`
	AccountTypeID uuid.UUID    `bun:"account_type_id,notnull,type:uuid" json:"account_type_id,omitempty"`
	AccountType   *AccountType `bun:"rel:has-one,join:account_type_id=id" json:"account_type,omitempty"`
	Active        bool         `bun:"is_active,notnull,default:true" json:"is_active,omitempty"`
	CreatedBy     string       `bun:"created_by" json:"created_by,omitempty"`
	UpdatedBy     string       `bun:"updated_by" json:"updated_by,omitempty"`
	UtcCreatedOn  time.Time    `bun:"utc_created_on,nullzero,default:current_timestamp" json:"utc_created_on,omitempty"`
	UtcUpdatedOn  time.Time    `bun:"utc_updated_on,nullzero,default:current_timestamp" json:"utc_updated_on,omitempty"`
	Version       int64        `bun:"version,notnull,default:1" json:"version,omitempty"`
}

// LoginRecord is an append-only audit row, one per successful authorization.
type LoginRecord struct {
	bun.BaseModel `bun:"table:app_user_login_history,alias:alh"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string    `bun:"email,notnull" json:"email,omitempty"`
	UtcLoginOn    time.Time `bun:"utc_login_on,nullzero,default:current_timestamp" json:"utc_login_on,omitempty"`
	OS            string    `bun:"os" json:"os,omitempty"`
	Browser       string    `bun:"browser" json:"browser,omitempty"`
	IPAddress     string    `bun:"ip_address" json:"ip_address,omitempty"`
}

// RefreshToken is an opaque single-use token. Redemption flips IsValid to
// false exactly once; expiration lives only on the row, never in the token.
type RefreshToken struct {
	bun.BaseModel     `bun:"table:refresh_tokens,alias:rft"`
	ID                uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID            uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User              *AppUser  `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Token             string    `bun:"token,notnull,unique" json:"token,omitempty"`
	DurationInSeconds int64     `bun:"duration_in_seconds,notnull" json:"duration_in_seconds,omitempty"`
	UtcExpiresOn      time.Time `bun:"utc_expires_on,notnull" json:"utc_expires_on,omitempty"`
	IsValid           bool      `bun:"is_valid,notnull,default:true" json:"is_valid,omitempty"`
	CreatedBy         string    `bun:"created_by" json:"created_by,omitempty"`
	UpdatedBy         string    `bun:"updated_by" json:"updated_by,omitempty"`
	UtcCreatedOn      time.Time `bun:"utc_created_on,nullzero,default:current_timestamp" json:"utc_created_on,omitempty"`
	UtcUpdatedOn      time.Time `bun:"utc_updated_on,nullzero,default:current_timestamp" json:"utc_updated_on,omitempty"`
	Version           int64     `bun:"version,notnull,default:1" json:"version,omitempty"`
}

// ExpiredAt reports whether the token is past its expiration.
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return t.UtcExpiresOn.Before(now)
}
