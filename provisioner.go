package accounts

import (
	"context"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Provisioner creates user records from invitations or allow-list entries.
// Every variant runs its writes inside one transaction: account before user
// before role link, with the consumed invitation stamped last.
type Provisioner struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

// NewProvisioner returns a new Provisioner
func NewProvisioner(repo RepositoryManager) *Provisioner {
	return &Provisioner{
		repo:   repo,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (p *Provisioner) WithLogger(logger Logger) *Provisioner {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// WithClock overrides the time source, mostly for tests.
func (p *Provisioner) WithClock(now func() time.Time) *Provisioner {
	if now != nil {
		p.now = now
	}
	return p
}

// ProvisionFromAccountInvite creates a user inside the invite's account and
// grants the invite's role.
func (p *Provisioner) ProvisionFromAccountInvite(ctx context.Context, invite *InviteToAccount, principal *AppUser) (*AppUser, error) {
	var user *AppUser
	err := p.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = p.ProvisionFromAccountInviteTx(ctx, tx, invite, principal)
		return err
	})
	return user, err
}

func (p *Provisioner) ProvisionFromAccountInviteTx(ctx context.Context, tx bun.IDB, invite *InviteToAccount, principal *AppUser) (*AppUser, error) {
	if invite == nil || principal == nil {
		return nil, ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"reason": "nil invite or principal"})
	}

	if invite.Account == nil || invite.Role == nil {
		return nil, ErrInvalidInvitation.Clone().
			WithMetadata(map[string]any{
				"invite_id": invite.ID.String(),
				"email":     invite.Email,
			})
	}

	now := p.now()
	principal.AccountID = invite.AccountID
	stampPrincipalAudit(principal, now)

	user, err := p.repo.Users().CreateTx(ctx, tx, principal)
	if err != nil {
		return nil, err
	}

	if _, err := p.repo.UserRoles().EnsureLinkTx(ctx, tx, user.ID, invite.RoleID, user.Email); err != nil {
		return nil, err
	}

	if _, err := p.repo.AccountInvites().MarkAcceptedTx(ctx, tx, invite, now, user.Email); err != nil {
		return nil, err
	}

	user.Account = invite.Account
	user.Roles = []*Role{invite.Role}

	p.logger.Info("provisioned user from account invite",
		"email", user.Email, "account_id", user.AccountID, "role", invite.Role.Name)

	return user, nil
}

// ProvisionFromApplicationInvite creates a brand-new account owned by the
// invitee and makes them its Administrator.
func (p *Provisioner) ProvisionFromApplicationInvite(ctx context.Context, invite *InviteToApplication, principal *AppUser) (*AppUser, error) {
	var user *AppUser
	err := p.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = p.ProvisionFromApplicationInviteTx(ctx, tx, invite, principal)
		return err
	})
	return user, err
}

func (p *Provisioner) ProvisionFromApplicationInviteTx(ctx context.Context, tx bun.IDB, invite *InviteToApplication, principal *AppUser) (*AppUser, error) {
	if invite == nil || principal == nil {
		return nil, ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"reason": "nil invite or principal"})
	}

	accountType := invite.AccountType
	if accountType == nil {
		var err error
		accountType, err = findAccountTypeByIDTx(ctx, tx, invite.AccountTypeID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil, ErrNotFound.Clone().
					WithMetadata(map[string]any{
						"account_type_id": invite.AccountTypeID.String(),
					})
			}
			return nil, err
		}
	}

	user, err := p.provisionAdminAccountTx(ctx, tx, accountType, principal)
	if err != nil {
		return nil, err
	}

	if _, err := p.repo.ApplicationInvites().MarkAcceptedTx(ctx, tx, invite, p.now(), user.Email); err != nil {
		return nil, err
	}

	p.logger.Info("provisioned user from application invite",
		"email", user.Email, "account_id", user.AccountID, "account_type", accountType.Name)

	return user, nil
}

// ProvisionPreAuthorized runs the application-invite path from an allow-list
// entry, no invitation row involved.
func (p *Provisioner) ProvisionPreAuthorized(ctx context.Context, entry *PreAuthorizedUser, principal *AppUser) (*AppUser, error) {
	var user *AppUser
	err := p.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = p.ProvisionPreAuthorizedTx(ctx, tx, entry, principal)
		return err
	})
	return user, err
}

func (p *Provisioner) ProvisionPreAuthorizedTx(ctx context.Context, tx bun.IDB, entry *PreAuthorizedUser, principal *AppUser) (*AppUser, error) {
	if entry == nil || principal == nil {
		return nil, ErrInvalidArgument.Clone().
			WithMetadata(map[string]any{"reason": "nil allow-list entry or principal"})
	}

	accountType := entry.AccountType
	if accountType == nil {
		var err error
		accountType, err = findAccountTypeByIDTx(ctx, tx, entry.AccountTypeID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil, ErrNotFound.Clone().
					WithMetadata(map[string]any{
						"account_type_id": entry.AccountTypeID.String(),
					})
			}
			return nil, err
		}
	}

	user, err := p.provisionAdminAccountTx(ctx, tx, accountType, principal)
	if err != nil {
		return nil, err
	}

	p.logger.Info("provisioned pre-authorized user",
		"email", user.Email, "account_id", user.AccountID, "account_type", accountType.Name)

	return user, nil
}

// provisionAdminAccountTx creates (or reuses) the account owned by the
// principal's email, persists the user into it, and grants Administrator.
func (p *Provisioner) provisionAdminAccountTx(ctx context.Context, tx bun.IDB, accountType *AccountType, principal *AppUser) (*AppUser, error) {
	now := p.now()

	account, err := p.repo.Accounts().GetOrCreateByOwnerTx(ctx, tx, &Account{
		Owner:         principal.Email,
		Name:          principal.Email,
		AccountTypeID: accountType.ID,
		CreatedBy:     principal.Email,
		UpdatedBy:     principal.Email,
		UtcCreatedOn:  now,
		UtcUpdatedOn:  now,
	})
	if err != nil {
		return nil, err
	}

	principal.AccountID = account.ID
	stampPrincipalAudit(principal, now)

	user, err := p.repo.Users().CreateTx(ctx, tx, principal)
	if err != nil {
		return nil, err
	}

	role, err := p.repo.Roles().GetOrCreateByNameTx(ctx, tx, RoleAdministrator)
	if err != nil {
		return nil, err
	}

	if _, err := p.repo.UserRoles().EnsureLinkTx(ctx, tx, user.ID, role.ID, user.Email); err != nil {
		return nil, err
	}

	account.AccountType = accountType
	user.Account = account
	user.Roles = []*Role{role}

	return user, nil
}

func stampPrincipalAudit(principal *AppUser, now time.Time) {
	principal.CreatedBy = principal.Email
	principal.UpdatedBy = principal.Email
	principal.UtcCreatedOn = now
	principal.UtcUpdatedOn = now

	if principal.Version == 0 {
		principal.Version = 1
	}
}

func findAccountByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func findAccountTypeByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*AccountType, error) {
	record := &AccountType{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

// getOrCreateAccountTypeTx resolves a tier by name, seeding it when missing.
// Ids derive from the name so racing inserts collide and the loser re-fetches.
func getOrCreateAccountTypeTx(ctx context.Context, tx bun.IDB, repo RepositoryManager, name string) (*AccountType, error) {
	record := &AccountType{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return record, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record = &AccountType{
		Name:      name,
		CreatedBy: "system",
		UpdatedBy: "system",
		Version:   1,
	}
	if id, herr := hashid.NewUUID(name); herr == nil {
		record.ID = id
	} else {
		record.ID = uuid.New()
	}

	created, cerr := repo.AccountTypes().CreateTx(ctx, tx, record)
	if cerr == nil {
		return created, nil
	}

	refetched := &AccountType{}
	err = tx.NewSelect().Model(refetched).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return refetched, nil
	}

	return nil, cerr
}
