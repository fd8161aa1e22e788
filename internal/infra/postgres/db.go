// Package postgres stores access grants and balance-style financial records
// in Postgres through gorm.
package postgres

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Open connects to Postgres at dsn. Slow queries and errors are logged
// through log.
func Open(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config(log))
	if err != nil {
		return nil, fmt.Errorf("Open: connecting to postgres: %w", err)
	}
	return db, nil
}

// Config returns the gorm configuration shared by every dialect.
func Config(log zerolog.Logger) *gorm.Config {
	l := log.With().Str("component", "gorm").Logger()
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(&l, gormLogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// AutoMigrate creates or updates the grant and record tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&GrantRow{}, &RecordRow{}); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	return sqlDB.Close()
}
