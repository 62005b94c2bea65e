package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

// OpenSQLite opens a single-connection SQLite database. Use a
// "file:<name>?mode=memory&cache=shared" path for an in-memory store.
func OpenSQLite(path string, logg *logger.Logger, quiet bool) (*gorm.DB, error) {
	gl := newGormLogger()
	if quiet {
		gl = gormLogger.Default.LogMode(gormLogger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)
	if logg != nil {
		logg.Debug("opened sqlite", "path", path)
	}
	return db, nil
}
