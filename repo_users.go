package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var TouchUserLoginSQL = `UPDATE "app_users" AS "usr"
SET
	"utc_last_login" = ?,
	"utc_updated_on" = ?,
	"updated_by" = ?,
	"version" = "usr"."version" + 1
WHERE
	("usr"."id" = ?)
AND (
	"usr"."version" = ?
) RETURNING *;`

type Users interface {
	repository.Repository[*AppUser]

	GetByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*AppUser, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*AppUser, error)

	GetOrCreate(ctx context.Context, record *AppUser) (*AppUser, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *AppUser) (*AppUser, error)
	Create(ctx context.Context, record *AppUser, criteria ...repository.InsertCriteria) (*AppUser, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *AppUser, criteria ...repository.InsertCriteria) (*AppUser, error)

	TouchLogin(ctx context.Context, user *AppUser, loginAt time.Time) (*AppUser, error)
	TouchLoginTx(ctx context.Context, tx bun.IDB, user *AppUser, loginAt time.Time) (*AppUser, error)
}

type users struct {
	repository.Repository[*AppUser]
	db *bun.DB
}

var (
	_ Users                           = (*users)(nil)
	_ repository.Repository[*AppUser] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*AppUser](db, repository.ModelHandlers[*AppUser]{
		NewRecord: func() *AppUser { return &AppUser{} },
		GetID: func(u *AppUser) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *AppUser, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

// IncludeAccount loads the record's account and its account type. Works for
// any model with an Account relation.
func IncludeAccount() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Relation("Account").Relation("Account.AccountType")
	}
}

// IncludeRoles loads the roles joined through app_user_roles.
func IncludeRoles() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Relation("Roles")
	}
}

// IncludeRole loads a single Role relation.
func IncludeRole() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Relation("Role")
	}
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*AppUser, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*AppUser, error) {
	options := resolveUserIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &AppUser{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) GetByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*AppUser, error) {
	return a.GetByEmailTx(ctx, a.db, email, criteria...)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*AppUser, error) {
	record := &AppUser{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("LOWER(?TableAlias.email) = LOWER(?)", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Create(ctx context.Context, record *AppUser, criteria ...repository.InsertCriteria) (*AppUser, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *AppUser, criteria ...repository.InsertCriteria) (*AppUser, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetOrCreate(ctx context.Context, record *AppUser) (*AppUser, error) {
	return a.GetOrCreateTx(ctx, a.db, record)
}

func (a *users) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *AppUser) (*AppUser, error) {
	identifier := record.Email
	if record.ID != uuid.Nil {
		identifier = record.ID.String()
	}

	user, err := a.GetByIdentifierTx(ctx, tx, identifier)
	if err == nil {
		return user, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.CreateTx(ctx, tx, record)
}

func (a *users) TouchLogin(ctx context.Context, user *AppUser, loginAt time.Time) (*AppUser, error) {
	return a.TouchLoginTx(ctx, a.db, user, loginAt)
}

// TouchLoginTx stamps utc_last_login and bumps the record version. The
// update is guarded on the version the caller read, so a concurrent login
// does not silently clobber a newer row. On a stale version we reload once
// and retry before giving up.
func (a *users) TouchLoginTx(ctx context.Context, tx bun.IDB, user *AppUser, loginAt time.Time) (*AppUser, error) {
	res, err := a.Repository.RawTx(ctx, tx, TouchUserLoginSQL,
		loginAt, loginAt, user.Email, user.ID.String(), user.Version)
	if err != nil {
		return nil, err
	}

	if len(res) > 0 {
		return res[0], nil
	}

	current, err := a.GetByIdentifierTx(ctx, tx, user.ID.String())
	if err != nil {
		return nil, err
	}

	res, err = a.Repository.RawTx(ctx, tx, TouchUserLoginSQL,
		loginAt, loginAt, user.Email, current.ID.String(), current.Version)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": user.ID.String(),
			})
	}

	return res[0], nil
}

func prepareUserDefaults(record *AppUser) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		if id, err := hashid.NewUUID(record.Email); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}

	if record.Version == 0 {
		record.Version = 1
	}

	if record.CreatedBy == "" {
		record.CreatedBy = record.Email
	}

	if record.UpdatedBy == "" {
		record.UpdatedBy = record.CreatedBy
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  strings.ToLower(trimmed),
		})
	}

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
