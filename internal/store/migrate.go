package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql

	"github.com/queueforge/taskqueue/internal/config"
)

// MigrateConfig holds migration configuration for cmd/migrate.
type MigrateConfig struct {
	StoreConfig    *config.StoreConfig
	MigrationsPath string
	Logger         *slog.Logger
}

// Migrator applies golang-migrate migrations against the Postgres side of
// the Queue Store.
type Migrator struct {
	migrate *migrate.Migrate
	logger  *slog.Logger
}

func NewMigrator(cfg *MigrateConfig) (*Migrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("migration configuration is required")
	}
	if cfg.StoreConfig == nil {
		return nil, fmt.Errorf("store configuration is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "file://internal/store/migrations"
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.StoreConfig.PostgresUser,
		cfg.StoreConfig.PostgresPassword,
		cfg.StoreConfig.PostgresHost,
		cfg.StoreConfig.PostgresPort,
		cfg.StoreConfig.PostgresDatabase,
		cfg.StoreConfig.PostgresSSLMode,
	)

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{migrate: m, logger: cfg.Logger}, nil
}

func (m *Migrator) Up() error {
	m.logger.Info("applying database migrations")
	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("no migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	m.logger.Info("database migrations applied successfully")
	return nil
}

func (m *Migrator) Down() error {
	m.logger.Info("rolling back database migration")
	if err := m.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	m.logger.Info("database migration rolled back successfully")
	return nil
}

func (m *Migrator) Reset() error {
	m.logger.Info("resetting database (rolling back all migrations)")
	if err := m.migrate.Drop(); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	m.logger.Info("database reset successfully")
	return nil
}

func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) Close() error {
	if m.migrate == nil {
		return nil
	}
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close migration database: %w", dbErr)
	}
	return nil
}

func MigrateUp(cfg *MigrateConfig) error {
	m, err := NewMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

func MigrateDown(cfg *MigrateConfig) error {
	m, err := NewMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Down()
}

func MigrateReset(cfg *MigrateConfig) error {
	m, err := NewMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Reset()
}
