package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var InvalidateRefreshTokenSQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"is_valid" = FALSE,
	"utc_updated_on" = ?,
	"updated_by" = ?,
	"version" = "rft"."version" + 1
WHERE
	("rft"."id" = ?)
AND (
	"rft"."version" = ?
)
AND (
	"rft"."is_valid" = TRUE
) RETURNING *;`

var RevokeUserRefreshTokensSQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"is_valid" = FALSE,
	"utc_updated_on" = ?,
	"updated_by" = ?,
	"version" = "rft"."version" + 1
WHERE
	("rft"."user_id" = ?)
AND (
	"rft"."is_valid" = TRUE
) RETURNING *;`

type RefreshTokens interface {
	repository.Repository[*RefreshToken]

	GetByToken(ctx context.Context, token string, criteria ...repository.SelectCriteria) (*RefreshToken, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string, criteria ...repository.SelectCriteria) (*RefreshToken, error)

	CountValidForUser(ctx context.Context, userID uuid.UUID) (int, error)
	CountValidForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error)

	Invalidate(ctx context.Context, token *RefreshToken, at time.Time, actor string) (*RefreshToken, error)
	InvalidateTx(ctx context.Context, tx bun.IDB, token *RefreshToken, at time.Time, actor string) (*RefreshToken, error)

	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time, actor string) (int, error)
	RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, at time.Time, actor string) (int, error)

	Create(ctx context.Context, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error)
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
	db *bun.DB
}

var (
	_ RefreshTokens                         = (*refreshTokens)(nil)
	_ repository.Repository[*RefreshToken] = (*refreshTokens)(nil)
)

func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(t *RefreshToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *RefreshToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &refreshTokens{
		Repository: repo,
		db:         db,
	}
}

// IncludeUser loads the token's owning user.
func IncludeUser() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Relation("User")
	}
}

func (a *refreshTokens) GetByToken(ctx context.Context, token string, criteria ...repository.SelectCriteria) (*RefreshToken, error) {
	return a.GetByTokenTx(ctx, a.db, token, criteria...)
}

func (a *refreshTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string, criteria ...repository.SelectCriteria) (*RefreshToken, error) {
	record := &RefreshToken{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"token": "redacted",
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *refreshTokens) CountValidForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return a.CountValidForUserTx(ctx, a.db, userID)
}

// CountValidForUserTx counts rows still flagged valid, expired or not.
// Expired rows hold their slot until revoked.
func (a *refreshTokens) CountValidForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error) {
	return tx.NewSelect().
		Model((*RefreshToken)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.is_valid = ?", true).
		Count(ctx)
}

func (a *refreshTokens) Invalidate(ctx context.Context, token *RefreshToken, at time.Time, actor string) (*RefreshToken, error) {
	return a.InvalidateTx(ctx, a.db, token, at, actor)
}

// InvalidateTx flips is_valid exactly once. The update is guarded on the
// version the caller read and on the token still being valid, so when two
// redemptions race only one wins. Losing the race surfaces as a not-found
// result the caller maps to a revocation error.
func (a *refreshTokens) InvalidateTx(ctx context.Context, tx bun.IDB, token *RefreshToken, at time.Time, actor string) (*RefreshToken, error) {
	res, err := a.Repository.RawTx(ctx, tx, InvalidateRefreshTokenSQL,
		at, actor, token.ID.String(), token.Version)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": token.ID.String(),
			})
	}

	return res[0], nil
}

func (a *refreshTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time, actor string) (int, error) {
	return a.RevokeAllForUserTx(ctx, a.db, userID, at, actor)
}

func (a *refreshTokens) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, at time.Time, actor string) (int, error) {
	res, err := a.Repository.RawTx(ctx, tx, RevokeUserRefreshTokensSQL,
		at, actor, userID.String())
	if err != nil {
		return 0, err
	}

	return len(res), nil
}

func (a *refreshTokens) Create(ctx context.Context, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *refreshTokens) CreateTx(ctx context.Context, tx bun.IDB, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error) {
	if record != nil {
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		record.IsValid = true
		if record.Version == 0 {
			record.Version = 1
		}
		if record.CreatedBy == "" {
			record.CreatedBy = record.UserID.String()
		}
		if record.UpdatedBy == "" {
			record.UpdatedBy = record.CreatedBy
		}
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}
