package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var AcceptAccountInviteSQL = `UPDATE "invites_to_account" AS "ita"
SET
	"utc_accepted_on" = ?,
	"utc_updated_on" = ?,
	"updated_by" = ?,
	"version" = "ita"."version" + 1
WHERE
	("ita"."id" = ?)
AND (
	"ita"."utc_accepted_on" IS NULL
) RETURNING *;`

var RejectAccountInviteSQL = `UPDATE "invites_to_account" AS "ita"
SET
	"utc_rejected_on" = ?,
	"rejected_reason" = ?,
	"utc_updated_on" = ?,
	"updated_by" = ?,
	"version" = "ita"."version" + 1
WHERE
	("ita"."id" = ?)
AND (
	"ita"."utc_accepted_on" IS NULL
)
AND (
	"ita"."utc_rejected_on" IS NULL
) RETURNING *;`

var AcceptApplicationInviteSQL = `UPDATE "invites_to_application" AS "itp"
SET
	"utc_accepted_on" = ?,
	"utc_updated_on" = ?,
	"updated_by" = ?,
	"version" = "itp"."version" + 1
WHERE
	("itp"."id" = ?)
AND (
	"itp"."utc_accepted_on" IS NULL
) RETURNING *;`

type AccountInvites interface {
	repository.Repository[*InviteToAccount]

	FindByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*InviteToAccount, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*InviteToAccount, error)

	MarkAccepted(ctx context.Context, invite *InviteToAccount, at time.Time, actor string) (*InviteToAccount, error)
	MarkAcceptedTx(ctx context.Context, tx bun.IDB, invite *InviteToAccount, at time.Time, actor string) (*InviteToAccount, error)

	MarkRejected(ctx context.Context, invite *InviteToAccount, at time.Time, actor, reason string) (*InviteToAccount, error)
	MarkRejectedTx(ctx context.Context, tx bun.IDB, invite *InviteToAccount, at time.Time, actor, reason string) (*InviteToAccount, error)

	Create(ctx context.Context, record *InviteToAccount, criteria ...repository.InsertCriteria) (*InviteToAccount, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *InviteToAccount, criteria ...repository.InsertCriteria) (*InviteToAccount, error)
}

type accountInvites struct {
	repository.Repository[*InviteToAccount]
	db *bun.DB
}

var _ AccountInvites = (*accountInvites)(nil)

func NewAccountInvitesRepository(db *bun.DB) AccountInvites {
	repo := repository.NewRepository[*InviteToAccount](db, repository.ModelHandlers[*InviteToAccount]{
		NewRecord: func() *InviteToAccount { return &InviteToAccount{} },
		GetID: func(i *InviteToAccount) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *InviteToAccount, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accountInvites{
		Repository: repo,
		db:         db,
	}
}

func (a *accountInvites) FindByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*InviteToAccount, error) {
	return a.FindByEmailTx(ctx, a.db, email, criteria...)
}

func (a *accountInvites) FindByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*InviteToAccount, error) {
	record := &InviteToAccount{}
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

func (a *accountInvites) MarkAccepted(ctx context.Context, invite *InviteToAccount, at time.Time, actor string) (*InviteToAccount, error) {
	return a.MarkAcceptedTx(ctx, a.db, invite, at, actor)
}

// MarkAcceptedTx stamps the invite as consumed. Replaying the stamp is a
// no-op that returns the row as it stands, so provisioning retries do not
// fail on an invite they already consumed.
func (a *accountInvites) MarkAcceptedTx(ctx context.Context, tx bun.IDB, invite *InviteToAccount, at time.Time, actor string) (*InviteToAccount, error) {
	res, err := a.Repository.RawTx(ctx, tx, AcceptAccountInviteSQL,
		at, at, actor, invite.ID.String())
	if err != nil {
		return nil, err
	}

	if len(res) > 0 {
		return res[0], nil
	}

	return a.Repository.GetByIdentifierTx(ctx, tx, invite.ID.String())
}

func (a *accountInvites) MarkRejected(ctx context.Context, invite *InviteToAccount, at time.Time, actor, reason string) (*InviteToAccount, error) {
	return a.MarkRejectedTx(ctx, a.db, invite, at, actor, reason)
}

func (a *accountInvites) MarkRejectedTx(ctx context.Context, tx bun.IDB, invite *InviteToAccount, at time.Time, actor, reason string) (*InviteToAccount, error) {
	res, err := a.Repository.RawTx(ctx, tx, RejectAccountInviteSQL,
		at, reason, at, actor, invite.ID.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id":     invite.ID.String(),
				"reason": "invite already resolved",
			})
	}

	return res[0], nil
}

func (a *accountInvites) Create(ctx context.Context, record *InviteToAccount, criteria ...repository.InsertCriteria) (*InviteToAccount, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accountInvites) CreateTx(ctx context.Context, tx bun.IDB, record *InviteToAccount, criteria ...repository.InsertCriteria) (*InviteToAccount, error) {
	if record != nil {
		record.Email = strings.ToLower(strings.TrimSpace(record.Email))
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		if record.Version == 0 {
			record.Version = 1
		}
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

type ApplicationInvites interface {
	repository.Repository[*InviteToApplication]

	FindByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*InviteToApplication, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*InviteToApplication, error)

	MarkAccepted(ctx context.Context, invite *InviteToApplication, at time.Time, actor string) (*InviteToApplication, error)
	MarkAcceptedTx(ctx context.Context, tx bun.IDB, invite *InviteToApplication, at time.Time, actor string) (*InviteToApplication, error)

	Create(ctx context.Context, record *InviteToApplication, criteria ...repository.InsertCriteria) (*InviteToApplication, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *InviteToApplication, criteria ...repository.InsertCriteria) (*InviteToApplication, error)
}

type applicationInvites struct {
	repository.Repository[*InviteToApplication]
	db *bun.DB
}

var _ ApplicationInvites = (*applicationInvites)(nil)

func NewApplicationInvitesRepository(db *bun.DB) ApplicationInvites {
	repo := repository.NewRepository[*InviteToApplication](db, repository.ModelHandlers[*InviteToApplication]{
		NewRecord: func() *InviteToApplication { return &InviteToApplication{} },
		GetID: func(i *InviteToApplication) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *InviteToApplication, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &applicationInvites{
		Repository: repo,
		db:         db,
	}
}

func (a *applicationInvites) FindByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*InviteToApplication, error) {
	return a.FindByEmailTx(ctx, a.db, email, criteria...)
}

func (a *applicationInvites) FindByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*InviteToApplication, error) {
	record := &InviteToApplication{}
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

func (a *applicationInvites) MarkAccepted(ctx context.Context, invite *InviteToApplication, at time.Time, actor string) (*InviteToApplication, error) {
	return a.MarkAcceptedTx(ctx, a.db, invite, at, actor)
}

func (a *applicationInvites) MarkAcceptedTx(ctx context.Context, tx bun.IDB, invite *InviteToApplication, at time.Time, actor string) (*InviteToApplication, error) {
	res, err := a.Repository.RawTx(ctx, tx, AcceptApplicationInviteSQL,
		at, at, actor, invite.ID.String())
	if err != nil {
		return nil, err
	}

	if len(res) > 0 {
		return res[0], nil
	}

	return a.Repository.GetByIdentifierTx(ctx, tx, invite.ID.String())
}

func (a *applicationInvites) Create(ctx context.Context, record *InviteToApplication, criteria ...repository.InsertCriteria) (*InviteToApplication, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *applicationInvites) CreateTx(ctx context.Context, tx bun.IDB, record *InviteToApplication, criteria ...repository.InsertCriteria) (*InviteToApplication, error) {
	if record != nil {
		record.Email = strings.ToLower(strings.TrimSpace(record.Email))
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		if record.Version == 0 {
			record.Version = 1
		}
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

type PreAuthorized interface {
	repository.Repository[*PreAuthorizedUser]

	FindActiveByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*PreAuthorizedUser, error)
	FindActiveByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*PreAuthorizedUser, error)

	Deactivate(ctx context.Context, id uuid.UUID, actor string) error
	DeactivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, actor string) error

	Create(ctx context.Context, record *PreAuthorizedUser, criteria ...repository.InsertCriteria) (*PreAuthorizedUser, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *PreAuthorizedUser, criteria ...repository.InsertCriteria) (*PreAuthorizedUser, error)
}

type preAuthorized struct {
	repository.Repository[*PreAuthorizedUser]
	db *bun.DB
}

var _ PreAuthorized = (*preAuthorized)(nil)

func NewPreAuthorizedRepository(db *bun.DB) PreAuthorized {
	repo := repository.NewRepository[*PreAuthorizedUser](db, repository.ModelHandlers[*PreAuthorizedUser]{
		NewRecord: func() *PreAuthorizedUser { return &PreAuthorizedUser{} },
		GetID: func(p *PreAuthorizedUser) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *PreAuthorizedUser, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &preAuthorized{
		Repository: repo,
		db:         db,
	}
}

func (a *preAuthorized) FindActiveByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*PreAuthorizedUser, error) {
	return a.FindActiveByEmailTx(ctx, a.db, email, criteria...)
}

func (a *preAuthorized) FindActiveByEmailTx(ctx context.Context, tx bun.IDB, email string, criteria ...repository.SelectCriteria) (*PreAuthorizedUser, error) {
	record := &PreAuthorizedUser{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("LOWER(?TableAlias.email) = LOWER(?)", strings.TrimSpace(email)).
		Where("?TableAlias.is_active = ?", true).
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

func (a *preAuthorized) Deactivate(ctx context.Context, id uuid.UUID, actor string) error {
	return a.DeactivateTx(ctx, a.db, id, actor)
}

func (a *preAuthorized) DeactivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, actor string) error {
	res, err := tx.NewUpdate().Model((*PreAuthorizedUser)(nil)).
		Set("is_active = ?", false).
		Set("updated_by = ?", actor).
		Set("version = version + 1").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.is_active = ?", true).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *preAuthorized) Create(ctx context.Context, record *PreAuthorizedUser, criteria ...repository.InsertCriteria) (*PreAuthorizedUser, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *preAuthorized) CreateTx(ctx context.Context, tx bun.IDB, record *PreAuthorizedUser, criteria ...repository.InsertCriteria) (*PreAuthorizedUser, error) {
	if record != nil {
		record.Email = strings.ToLower(strings.TrimSpace(record.Email))
		// Entries are born active, Deactivate is the only way out.
		record.Active = true
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		if record.Version == 0 {
			record.Version = 1
		}
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}
