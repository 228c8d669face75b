package accounts

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultInviteTTL is the expiration window stamped on invitations created
// without an explicit one.
const DefaultInviteTTL = 14 * 24 * time.Hour

// inviteResolver answers which door, if any, lets an email in. A miss is not
// an error, it just means try the next path. Expired or already resolved
// invitations count as misses.
type inviteResolver struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

func (r inviteResolver) FindAccountInvite(ctx context.Context, tx bun.IDB, email string) (*InviteToAccount, error) {
	invite, err := r.repo.AccountInvites().FindByEmailTx(ctx, tx, email, IncludeAccount(), IncludeRole())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			r.logger.Debug("no account invite", "email", email)
			return nil, nil
		}
		return nil, err
	}

	if invite.UtcAcceptedOn != nil || invite.UtcRejectedOn != nil {
		r.logger.Debug("account invite already resolved", "email", email)
		return nil, nil
	}

	if invite.Expired(r.now()) {
		r.logger.Info("account invite expired", "email", email, "expired_on", invite.UtcExpiration)
		return nil, nil
	}

	return invite, nil
}

func (r inviteResolver) FindApplicationInvite(ctx context.Context, tx bun.IDB, email string) (*InviteToApplication, error) {
	invite, err := r.repo.ApplicationInvites().FindByEmailTx(ctx, tx, email, IncludeAccountType())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			r.logger.Debug("no application invite", "email", email)
			return nil, nil
		}
		return nil, err
	}

	if invite.UtcAcceptedOn != nil {
		r.logger.Debug("application invite already consumed", "email", email)
		return nil, nil
	}

	if invite.Expired(r.now()) {
		r.logger.Info("application invite expired", "email", email, "expired_on", invite.UtcExpiration)
		return nil, nil
	}

	return invite, nil
}

func (r inviteResolver) FindPreAuthorized(ctx context.Context, tx bun.IDB, email string) (*PreAuthorizedUser, error) {
	entry, err := r.repo.PreAuthorized().FindActiveByEmailTx(ctx, tx, email, IncludeAccountType())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			r.logger.Debug("no pre-authorization", "email", email)
			return nil, nil
		}
		return nil, err
	}

	return entry, nil
}

// AccountInviteRequest invites an email into an existing account with a role.
type AccountInviteRequest struct {
	Email     string        `json:"email"`
	AccountID uuid.UUID     `json:"account_id"`
	Role      string        `json:"role"`
	TTL       time.Duration `json:"ttl,omitempty"`
	InvitedBy string        `json:"invited_by"`
}

// Validate will run validation rules
func (r AccountInviteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.AccountID,
			validation.By(validateUUIDPresent),
		),
		validation.Field(
			&r.Role,
			validation.Required,
			validation.In(RoleVisitor, RoleMember, RoleOwner, RoleAdministrator),
		),
	)
}

// ApplicationInviteRequest invites an email to create its own account of the
// given tier.
type ApplicationInviteRequest struct {
	Email       string        `json:"email"`
	AccountType string        `json:"account_type"`
	TTL         time.Duration `json:"ttl,omitempty"`
	InvitedBy   string        `json:"invited_by"`
}

// Validate will run validation rules
func (r ApplicationInviteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.AccountType,
			validation.Required,
			validation.Length(1, 100),
		),
	)
}

// PreAuthorizeRequest adds an email to the allow-list.
type PreAuthorizeRequest struct {
	Email       string `json:"email"`
	AccountType string `json:"account_type"`
	CreatedBy   string `json:"created_by"`
}

// Validate will run validation rules
func (r PreAuthorizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.AccountType,
			validation.Required,
			validation.Length(1, 100),
		),
	)
}

func validateUUIDPresent(value any) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return fmt.Errorf("must be a valid uuid")
	}
	return nil
}

// InvitationManager creates and resolves the records the authorization flow
// consumes: account invitations, application invitations, and allow-list
// entries.
type InvitationManager struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

// NewInvitationManager returns a new InvitationManager
func NewInvitationManager(repo RepositoryManager) *InvitationManager {
	return &InvitationManager{
		repo:   repo,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (m *InvitationManager) WithLogger(logger Logger) *InvitationManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithClock overrides the time source, mostly for tests.
func (m *InvitationManager) WithClock(now func() time.Time) *InvitationManager {
	if now != nil {
		m.now = now
	}
	return m
}

// CreateAccountInvite records a pending grant into an existing account. The
// account must exist; the role is seeded when missing.
func (m *InvitationManager) CreateAccountInvite(ctx context.Context, req AccountInviteRequest) (*InviteToAccount, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid account invitation").
			WithTextCode(TextCodeInvalidArgument).
			WithCode(errors.CodeBadRequest)
	}

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}

	var invite *InviteToAccount
	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := m.repo.AccountInvites().FindByEmailTx(ctx, tx, email); err == nil {
			return ErrDuplicateInvitation.Clone().
				WithMetadata(map[string]any{"email": email})
		} else if !repository.IsRecordNotFound(err) {
			return err
		}

		account, err := findAccountByIDTx(ctx, tx, req.AccountID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrNotFound.Clone().
					WithMetadata(map[string]any{"account_id": req.AccountID.String()})
			}
			return err
		}

		role, err := m.repo.Roles().GetOrCreateByNameTx(ctx, tx, req.Role)
		if err != nil {
			return err
		}

		record := &InviteToAccount{
			Email:         email,
			AccountID:     account.ID,
			RoleID:        role.ID,
			UtcExpiration: m.now().Add(ttl),
			CreatedBy:     req.InvitedBy,
			UpdatedBy:     req.InvitedBy,
		}

		invite, err = m.repo.AccountInvites().CreateTx(ctx, tx, record)
		return err
	})

	if err != nil {
		m.logger.Error("create account invite failed", "email", email, "error", err)
		return nil, err
	}

	m.logger.Info("account invite created", "email", email, "account_id", invite.AccountID)

	return invite, nil
}

// CreateApplicationInvite records a pending application-level grant. The
// account type is seeded when missing.
func (m *InvitationManager) CreateApplicationInvite(ctx context.Context, req ApplicationInviteRequest) (*InviteToApplication, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid application invitation").
			WithTextCode(TextCodeInvalidArgument).
			WithCode(errors.CodeBadRequest)
	}

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}

	var invite *InviteToApplication
	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := m.repo.ApplicationInvites().FindByEmailTx(ctx, tx, email); err == nil {
			return ErrDuplicateInvitation.Clone().
				WithMetadata(map[string]any{"email": email})
		} else if !repository.IsRecordNotFound(err) {
			return err
		}

		accountType, err := getOrCreateAccountTypeTx(ctx, tx, m.repo, req.AccountType)
		if err != nil {
			return err
		}

		record := &InviteToApplication{
			Email:         email,
			AccountTypeID: accountType.ID,
			UtcExpiration: m.now().Add(ttl),
			CreatedBy:     req.InvitedBy,
			UpdatedBy:     req.InvitedBy,
		}

		invite, err = m.repo.ApplicationInvites().CreateTx(ctx, tx, record)
		return err
	})

	if err != nil {
		m.logger.Error("create application invite failed", "email", email, "error", err)
		return nil, err
	}

	m.logger.Info("application invite created", "email", email, "account_type", req.AccountType)

	return invite, nil
}

// PreAuthorize adds an email to the allow-list so its first login provisions
// an administrator account without an explicit invitation.
func (m *InvitationManager) PreAuthorize(ctx context.Context, req PreAuthorizeRequest) (*PreAuthorizedUser, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid pre-authorization").
			WithTextCode(TextCodeInvalidArgument).
			WithCode(errors.CodeBadRequest)
	}

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	var entry *PreAuthorizedUser
	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := m.repo.PreAuthorized().FindActiveByEmailTx(ctx, tx, email); err == nil {
			return ErrDuplicateInvitation.Clone().
				WithMetadata(map[string]any{"email": email})
		} else if !repository.IsRecordNotFound(err) {
			return err
		}

		accountType, err := getOrCreateAccountTypeTx(ctx, tx, m.repo, req.AccountType)
		if err != nil {
			return err
		}

		record := &PreAuthorizedUser{
			Email:         email,
			AccountTypeID: accountType.ID,
			CreatedBy:     req.CreatedBy,
			UpdatedBy:     req.CreatedBy,
		}

		entry, err = m.repo.PreAuthorized().CreateTx(ctx, tx, record)
		return err
	})

	if err != nil {
		m.logger.Error("pre-authorize failed", "email", email, "error", err)
		return nil, err
	}

	m.logger.Info("email pre-authorized", "email", email, "account_type", req.AccountType)

	return entry, nil
}

// RejectAccountInvite marks a pending invitation as declined. Rejecting an
// invitation that was already accepted or rejected fails with
// ErrInvalidInvitation.
func (m *InvitationManager) RejectAccountInvite(ctx context.Context, email, reason, actor string) (*InviteToAccount, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	invite, err := m.repo.AccountInvites().FindByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNotFound.Clone().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	rejected, err := m.repo.AccountInvites().MarkRejected(ctx, invite, m.now(), actor, reason)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidInvitation.Clone().
				WithMetadata(map[string]any{
					"email":  email,
					"reason": "invitation already resolved",
				})
		}
		return nil, err
	}

	m.logger.Info("account invite rejected", "email", email, "reason", reason)

	return rejected, nil
}

// DeactivatePreAuthorization removes an email from the allow-list.
func (m *InvitationManager) DeactivatePreAuthorization(ctx context.Context, email, actor string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	entry, err := m.repo.PreAuthorized().FindActiveByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrNotFound.Clone().
				WithMetadata(map[string]any{"email": email})
		}
		return err
	}

	if err := m.repo.PreAuthorized().Deactivate(ctx, entry.ID, actor); err != nil {
		return err
	}

	m.logger.Info("pre-authorization deactivated", "email", email)

	return nil
}
