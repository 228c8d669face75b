package accounts

import (
	"context"
	"strings"

	"github.com/goliatone/hashid/pkg/hashid"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Accounts interface {
	repository.Repository[*Account]

	GetByOwner(ctx context.Context, owner string, criteria ...repository.SelectCriteria) (*Account, error)
	GetByOwnerTx(ctx context.Context, tx bun.IDB, owner string, criteria ...repository.SelectCriteria) (*Account, error)

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	GetOrCreateByOwner(ctx context.Context, record *Account) (*Account, error)
	GetOrCreateByOwnerTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
}

type accountsRepo struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accountsRepo)(nil)
	_ repository.Repository[*Account] = (*accountsRepo)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "owner"
		},
	})

	return &accountsRepo{
		Repository: repo,
		db:         db,
	}
}

// IncludeAccountType loads the account's tier.
func IncludeAccountType() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Relation("AccountType")
	}
}

func (a *accountsRepo) GetByOwner(ctx context.Context, owner string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByOwnerTx(ctx, a.db, owner, criteria...)
}

func (a *accountsRepo) GetByOwnerTx(ctx context.Context, tx bun.IDB, owner string, criteria ...repository.SelectCriteria) (*Account, error) {
	record := &Account{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("LOWER(?TableAlias.owner) = LOWER(?)", strings.TrimSpace(owner)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"owner": owner,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accountsRepo) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accountsRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accountsRepo) GetOrCreateByOwner(ctx context.Context, record *Account) (*Account, error) {
	return a.GetOrCreateByOwnerTx(ctx, a.db, record)
}

// GetOrCreateByOwnerTx resolves the account for an owner, creating it when
// missing. The owner column is unique, so when two logins race the insert the
// loser re-fetches the winner's row instead of surfacing the conflict.
func (a *accountsRepo) GetOrCreateByOwnerTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	account, err := a.GetByOwnerTx(ctx, tx, record.Owner)
	if err == nil {
		return account, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	created, cerr := a.CreateTx(ctx, tx, record)
	if cerr == nil {
		return created, nil
	}

	if account, err = a.GetByOwnerTx(ctx, tx, record.Owner); err == nil {
		return account, nil
	}

	return nil, cerr
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		if id, err := hashid.NewUUID(record.Owner); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}

	if record.Name == "" {
		record.Name = record.Owner
	}

	if record.Version == 0 {
		record.Version = 1
	}

	if record.CreatedBy == "" {
		record.CreatedBy = record.Owner
	}

	if record.UpdatedBy == "" {
		record.UpdatedBy = record.CreatedBy
	}
}
