package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/applyflow/applyflow/internal/log"
)

// MigratorConfig is the configuration for a storage backend migrator.
type MigratorConfig struct {
	// Files has the `<version>_<name>.{up,down}.sql` migration files at Dir.
	Files fs.FS
	Dir   string
	// DatabaseName is the golang-migrate database name used for logging (e.g. sqlite, pgx5).
	DatabaseName string
	// Driver returns a golang-migrate driver bound to an already opened database.
	Driver func() (database.Driver, error)
	Logger log.Logger
}

func (c *MigratorConfig) defaults() error {
	if c.Files == nil {
		return fmt.Errorf("migration files are required")
	}
	if c.Dir == "" {
		c.Dir = "sql"
	}
	if c.Driver == nil {
		return fmt.Errorf("database driver is required")
	}
	if c.DatabaseName == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Migrator", "db": c.DatabaseName})
	return nil
}

// Migrator handles database migrations of a storage backend.
type Migrator struct {
	cfg    MigratorConfig
	logger log.Logger
}

// NewMigrator creates a new migrator instance.
func NewMigrator(cfg MigratorConfig) (*Migrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Migrator{
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Up runs all available migrations.
func (m *Migrator) Up(ctx context.Context) error {
	inst, close, err := m.instance()
	defer close()
	if err != nil {
		return err
	}

	err = inst.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	m.logger.Debugf("Migrations applied successfully")
	return nil
}

// Down reverts all migrations.
func (m *Migrator) Down(ctx context.Context) error {
	inst, close, err := m.instance()
	defer close()
	if err != nil {
		return err
	}

	err = inst.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not revert migrations: %w", err)
	}

	m.logger.Debugf("Migrations reverted successfully")
	return nil
}

func (m *Migrator) instance() (instance *migrate.Migrate, close func(), err error) {
	close = func() {}

	driver, err := m.cfg.Driver()
	if err != nil {
		return nil, close, fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(m.cfg.Files, m.cfg.Dir)
	if err != nil {
		return nil, close, fmt.Errorf("could not create fs: %w", err)
	}
	close = func() {
		if err := src.Close(); err != nil {
			m.logger.Errorf("could not close fs: %s", err)
		}
	}

	instance, err = migrate.NewWithInstance("iofs", src, m.cfg.DatabaseName, driver)
	if err != nil {
		return nil, close, fmt.Errorf("could not create migration instance: %w", err)
	}

	return instance, close, nil
}
