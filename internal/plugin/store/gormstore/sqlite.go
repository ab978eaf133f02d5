package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/config"
	"github.com/chirino/portal-service/internal/model"
	registrymigrate "github.com/chirino/portal-service/internal/registry/migrate"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.PortalStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.SQLitePath == "" {
				return nil, fmt.Errorf("sqlite store: PORTAL_SERVICE_SQLITE_PATH is required")
			}
			if err := ensureParentDir(cfg.SQLitePath); err != nil {
				return nil, err
			}
			st, err := open(ctx, sqlite.Open(cfg.SQLitePath))
			if err != nil {
				return nil, err
			}
			// An in-memory database exists only on its own connection: pin
			// the pool to one and migrate here, since the separate migrator
			// connection cannot see it.
			if cfg.SQLitePath == ":memory:" {
				sqlDB, err := st.db.DB()
				if err != nil {
					return nil, err
				}
				sqlDB.SetMaxOpenConns(1)
				if err := autoMigrate(st.db); err != nil {
					return nil, err
				}
			}
			return st, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

func ensureParentDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }

func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	if err := ensureParentDir(cfg.SQLitePath); err != nil {
		return err
	}
	db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return autoMigrate(db)
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ClientLabel{},
		&model.AllowedClient{},
		&model.MagicToken{},
	)
}
