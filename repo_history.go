package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type LoginHistory interface {
	repository.Repository[*LoginRecord]

	Record(ctx context.Context, email string, at time.Time, device DeviceInfo) (*LoginRecord, error)
	RecordTx(ctx context.Context, tx bun.IDB, email string, at time.Time, device DeviceInfo) (*LoginRecord, error)

	ListByEmail(ctx context.Context, email string, limit int) ([]*LoginRecord, error)
	ListByEmailTx(ctx context.Context, tx bun.IDB, email string, limit int) ([]*LoginRecord, error)
}

type loginHistory struct {
	repository.Repository[*LoginRecord]
	db *bun.DB
}

var _ LoginHistory = (*loginHistory)(nil)

func NewLoginHistoryRepository(db *bun.DB) LoginHistory {
	repo := repository.NewRepository[*LoginRecord](db, repository.ModelHandlers[*LoginRecord]{
		NewRecord: func() *LoginRecord { return &LoginRecord{} },
		GetID: func(r *LoginRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *LoginRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &loginHistory{
		Repository: repo,
		db:         db,
	}
}

func (a *loginHistory) Record(ctx context.Context, email string, at time.Time, device DeviceInfo) (*LoginRecord, error) {
	return a.RecordTx(ctx, a.db, email, at, device)
}

func (a *loginHistory) RecordTx(ctx context.Context, tx bun.IDB, email string, at time.Time, device DeviceInfo) (*LoginRecord, error) {
	device = device.Normalize()

	record := &LoginRecord{
		ID:         uuid.New(),
		Email:      strings.ToLower(strings.TrimSpace(email)),
		UtcLoginOn: at,
		OS:         device.OS,
		Browser:    device.Browser,
		IPAddress:  device.IPAddress,
	}

	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *loginHistory) ListByEmail(ctx context.Context, email string, limit int) ([]*LoginRecord, error) {
	return a.ListByEmailTx(ctx, a.db, email, limit)
}

func (a *loginHistory) ListByEmailTx(ctx context.Context, tx bun.IDB, email string, limit int) ([]*LoginRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	records := []*LoginRecord{}
	err := tx.NewSelect().
		Model(&records).
		Where("LOWER(?TableAlias.email) = LOWER(?)", strings.TrimSpace(email)).
		OrderExpr("?TableAlias.utc_login_on DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}
