package gormstore

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/portal-service/internal/config"
	registrymigrate "github.com/chirino/portal-service/internal/registry/migrate"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.PortalStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.DBURL == "" {
				return nil, fmt.Errorf("postgres store: PORTAL_SERVICE_DB_URL is required")
			}
			return open(ctx, postgres.Open(cfg.DBURL))
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }

func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "postgres" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
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
