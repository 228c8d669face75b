package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Accounts() Accounts
	AccountTypes() repository.Repository[*AccountType]
	Roles() Roles
	UserRoles() UserRoles
	AccountInvites() AccountInvites
	ApplicationInvites() ApplicationInvites
	PreAuthorized() PreAuthorized
	LoginHistory() LoginHistory
	RefreshTokens() RefreshTokens
}

func NewAccountTypesRepository(db *bun.DB) repository.Repository[*AccountType] {
	handlers := repository.ModelHandlers[*AccountType]{
		NewRecord: func() *AccountType {
			return &AccountType{}
		},
		GetID: func(record *AccountType) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *AccountType, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "name"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db                 *bun.DB
	users              Users
	accounts           Accounts
	accountTypes       repository.Repository[*AccountType]
	roles              Roles
	userRoles          UserRoles
	accountInvites     AccountInvites
	applicationInvites ApplicationInvites
	preAuthorized      PreAuthorized
	loginHistory       LoginHistory
	refreshTokens      RefreshTokens
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:                 db,
		users:              NewUsersRepository(db),
		accounts:           NewAccountsRepository(db),
		accountTypes:       NewAccountTypesRepository(db),
		roles:              NewRolesRepository(db),
		userRoles:          NewUserRolesRepository(db),
		accountInvites:     NewAccountInvitesRepository(db),
		applicationInvites: NewApplicationInvitesRepository(db),
		preAuthorized:      NewPreAuthorizedRepository(db),
		loginHistory:       NewLoginHistoryRepository(db),
		refreshTokens:      NewRefreshTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.accountTypes == nil {
		return errors.New("repository accountTypes should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.userRoles == nil {
		return errors.New("repository userRoles should be initialized")
	}

	if m.accountInvites == nil {
		return errors.New("repository accountInvites should be initialized")
	}

	if m.applicationInvites == nil {
		return errors.New("repository applicationInvites should be initialized")
	}

	if m.preAuthorized == nil {
		return errors.New("repository preAuthorized should be initialized")
	}

	if m.loginHistory == nil {
		return errors.New("repository loginHistory should be initialized")
	}

	if m.refreshTokens == nil {
		return errors.New("repository refreshTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) AccountTypes() repository.Repository[*AccountType] {
	return m.accountTypes
}

func (m mngr) Roles() Roles {
	return m.roles
}

func (m mngr) UserRoles() UserRoles {
	return m.userRoles
}

func (m mngr) AccountInvites() AccountInvites {
	return m.accountInvites
}

func (m mngr) ApplicationInvites() ApplicationInvites {
	return m.applicationInvites
}

func (m mngr) PreAuthorized() PreAuthorized {
	return m.preAuthorized
}

func (m mngr) LoginHistory() LoginHistory {
	return m.loginHistory
}

func (m mngr) RefreshTokens() RefreshTokens {
	return m.refreshTokens
}
