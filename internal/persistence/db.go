// Package persistence stores processing records, match outcomes and lock
// leases through gorm.
package persistence

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database and migrates the schema. SQLite is limited
// to a single connection so an in-memory database is shared by all callers.
func Open(driver, dsn string, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	logMode := gormlogger.Silent
	if debug {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}

	if strings.ToLower(driver) == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("cannot access database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// matchedContributionIndex allows at most one MATCHED outcome per contribution.
// Both postgres and sqlite support partial indexes.
const matchedContributionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_match_outcomes_matched_contribution
	ON match_outcomes (contribution_id) WHERE status = 'MATCHED'`

// Migrate creates or updates the tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ProcessingRecordRow{}, &MatchOutcomeRow{}, &LockRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := db.Exec(matchedContributionIndex).Error; err != nil {
		return fmt.Errorf("failed to create matched contribution index: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
