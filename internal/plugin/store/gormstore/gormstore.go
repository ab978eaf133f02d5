// Package gormstore implements PortalStore on gorm. The postgres and
// sqlite plugins both register through it; only the dialector differs.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chirino/portal-service/internal/config"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Store is a gorm-backed PortalStore.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func open(ctx context.Context, dialector gorm.Dialector) (*Store, error) {
	cfg := config.FromContext(ctx)
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	if cfg != nil {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	return New(db), nil
}

// isUniqueViolation detects a uniqueness conflict from either backend.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// gorm's sqlite driver may surface the constraint as plain text.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ registrystore.PortalStore = (*Store)(nil)
