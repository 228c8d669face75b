package accounts

import (
	"context"
	"database/sql"
	"io/fs"

	"github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/schema"
)

// migrationsRoot is the embedded path registered with the persistence client.
const migrationsRoot = "data/sql/migrations"

// RegisterModels registers every accounts model with the persistence client.
// The AppUserRole join model must be known to bun before any query loads the
// Roles relation.
func RegisterModels() {
	persistence.RegisterModel((*AccountType)(nil))
	persistence.RegisterModel((*Account)(nil))
	persistence.RegisterModel((*Role)(nil))
	persistence.RegisterModel((*AppUserRole)(nil))
	persistence.RegisterModel((*AppUser)(nil))
	persistence.RegisterModel((*InviteToAccount)(nil))
	persistence.RegisterModel((*InviteToApplication)(nil))
	persistence.RegisterModel((*PreAuthorizedUser)(nil))
	persistence.RegisterModel((*LoginRecord)(nil))
	persistence.RegisterModel((*RefreshToken)(nil))
}

// NewPersistenceClient builds a persistence client with the accounts models
// and dialect migrations registered.
func NewPersistenceClient(cfg persistence.Config, db *sql.DB, dialect schema.Dialect) (*persistence.Client, error) {
	RegisterModels()

	client, err := persistence.New(cfg, db, dialect)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to create persistence client")
	}

	migrations, err := fs.Sub(GetMigrationsFS(), migrationsRoot)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to scope migrations filesystem")
	}

	client.RegisterDialectMigrations(
		migrations,
		persistence.WithDialectSourceLabel(migrationsRoot),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	return client, nil
}

// Migrate validates the dialect migration sets and applies them.
func Migrate(ctx context.Context, client *persistence.Client) error {
	if err := client.ValidateDialects(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "migration validation failed")
	}

	if err := client.Migrate(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "migration failed")
	}

	return nil
}
