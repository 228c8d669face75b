package accounts

import (
	"context"
	"fmt"

	"github.com/goliatone/hashid/pkg/hashid"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Roles interface {
	repository.Repository[*Role]

	GetByName(ctx context.Context, name string, criteria ...repository.SelectCriteria) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string, criteria ...repository.SelectCriteria) (*Role, error)

	GetOrCreateByName(ctx context.Context, name string) (*Role, error)
	GetOrCreateByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)

	Create(ctx context.Context, record *Role, criteria ...repository.InsertCriteria) (*Role, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Role, criteria ...repository.InsertCriteria) (*Role, error)
}

type rolesRepo struct {
	repository.Repository[*Role]
	db *bun.DB
}

var (
	_ Roles                        = (*rolesRepo)(nil)
	_ repository.Repository[*Role] = (*rolesRepo)(nil)
)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &rolesRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *rolesRepo) GetByName(ctx context.Context, name string, criteria ...repository.SelectCriteria) (*Role, error) {
	return a.GetByNameTx(ctx, a.db, name, criteria...)
}

func (a *rolesRepo) GetByNameTx(ctx context.Context, tx bun.IDB, name string, criteria ...repository.SelectCriteria) (*Role, error) {
	record := &Role{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"name": name,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *rolesRepo) GetOrCreateByName(ctx context.Context, name string) (*Role, error) {
	return a.GetOrCreateByNameTx(ctx, a.db, name)
}

// GetOrCreateByNameTx resolves a role by name, seeding it when missing. Role
// names are unique and ids derive from the name, so two requests racing the
// insert collide and the loser re-fetches the winner's row.
func (a *rolesRepo) GetOrCreateByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	role, err := a.GetByNameTx(ctx, tx, name)
	if err == nil {
		return role, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record := &Role{
		Name:        name,
		Description: defaultRoleDescription(name),
	}

	created, cerr := a.CreateTx(ctx, tx, record)
	if cerr == nil {
		return created, nil
	}

	if role, err = a.GetByNameTx(ctx, tx, name); err == nil {
		return role, nil
	}

	return nil, cerr
}

func (a *rolesRepo) Create(ctx context.Context, record *Role, criteria ...repository.InsertCriteria) (*Role, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *rolesRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Role, criteria ...repository.InsertCriteria) (*Role, error) {
	prepareRoleDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func prepareRoleDefaults(record *Role) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		if id, err := hashid.NewUUID(record.Name); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}

	if record.Version == 0 {
		record.Version = 1
	}

	if record.CreatedBy == "" {
		record.CreatedBy = "system"
	}

	if record.UpdatedBy == "" {
		record.UpdatedBy = record.CreatedBy
	}
}

func defaultRoleDescription(name string) string {
	switch name {
	case RoleVisitor:
		return "Read only access"
	case RoleMember:
		return "Regular account member"
	case RoleOwner:
		return "Account owner"
	case RoleAdministrator:
		return "Application administrator"
	default:
		return ""
	}
}

type UserRoles interface {
	repository.Repository[*AppUserRole]

	EnsureLink(ctx context.Context, userID, roleID uuid.UUID, grantedBy string) (*AppUserRole, error)
	EnsureLinkTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID, grantedBy string) (*AppUserRole, error)
}

type userRolesRepo struct {
	repository.Repository[*AppUserRole]
	db *bun.DB
}

var (
	_ UserRoles                           = (*userRolesRepo)(nil)
	_ repository.Repository[*AppUserRole] = (*userRolesRepo)(nil)
)

func NewUserRolesRepository(db *bun.DB) UserRoles {
	repo := repository.NewRepository[*AppUserRole](db, repository.ModelHandlers[*AppUserRole]{
		NewRecord: func() *AppUserRole { return &AppUserRole{} },
		GetID: func(l *AppUserRole) uuid.UUID {
			if l == nil {
				return uuid.Nil
			}
			return l.ID
		},
		SetID: func(l *AppUserRole, id uuid.UUID) {
			if l != nil {
				l.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &userRolesRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *userRolesRepo) EnsureLink(ctx context.Context, userID, roleID uuid.UUID, grantedBy string) (*AppUserRole, error) {
	return a.EnsureLinkTx(ctx, a.db, userID, roleID, grantedBy)
}

// EnsureLinkTx grants a role to a user exactly once. Replaying the same grant
// returns the existing link untouched.
func (a *userRolesRepo) EnsureLinkTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID, grantedBy string) (*AppUserRole, error) {
	link := &AppUserRole{}
	err := tx.NewSelect().Model(link).
		Where("?TableAlias.app_user_id = ?", userID).
		Where("?TableAlias.role_id = ?", roleID).
		Limit(1).
		Scan(ctx)

	if err == nil {
		return link, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record := &AppUserRole{
		AppUserID: userID,
		RoleID:    roleID,
		CreatedBy: grantedBy,
		UpdatedBy: grantedBy,
	}
	prepareUserRoleDefaults(record)

	created, cerr := a.Repository.CreateTx(ctx, tx, record)
	if cerr == nil {
		return created, nil
	}

	err = tx.NewSelect().Model(link).
		Where("?TableAlias.app_user_id = ?", userID).
		Where("?TableAlias.role_id = ?", roleID).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return link, nil
	}

	return nil, cerr
}

func prepareUserRoleDefaults(record *AppUserRole) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		seed := fmt.Sprintf("%s:%s", record.AppUserID, record.RoleID)
		if id, err := hashid.NewUUID(seed); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}

	if record.Version == 0 {
		record.Version = 1
	}
}
