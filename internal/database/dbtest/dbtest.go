// Package dbtest opens throwaway SQLite stores for tests.
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rammfall-education/api-fine/internal/config"
	"github.com/rammfall-education/api-fine/internal/database"

	"gorm.io/gorm"
)

// New returns a migrated store backed by a file in t.TempDir. A file is used
// rather than :memory: so that pooled connections share one database.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "fines.db"),
		MaxOpenConns: 8,
		BusyTimeout:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
