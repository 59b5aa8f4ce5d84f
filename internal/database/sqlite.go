package database

import (
	"fmt"
	"strings"

	"github.com/bashirbobboi/elevator-pitch/internal/pitches"
	"github.com/bashirbobboi/elevator-pitch/internal/profiles"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// busyTimeoutMillis lets a second process wait for the write lock instead of failing.
const busyTimeoutMillis = 5000

// schemaModels lists every table the service owns.
func schemaModels() []any {
	return []any{&pitches.Pitch{}, &pitches.ViewerEngagement{}, &profiles.Profile{}, &migrationRecord{}}
}

// OpenSQLite opens the pitch database at path, migrates the schema and applies pending
// data migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers; pitch saves also carry a version check.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(schemaModels()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// sqliteDSN appends connection pragmas unless the caller already supplied query parameters.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") || strings.Contains(path, ":memory:") {
		return path
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMillis)
}
