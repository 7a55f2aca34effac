package db

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"lessontalk/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// Open connects to postgres (default) or sqlite. Errors from the driver are
// translated so that unique-key violations surface as gorm.ErrDuplicatedKey.
func Open(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(dbType) {
	case "", TypePostgres:
		dialector = postgres.Open(dsn)
	case TypeSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newLogger(log.New(os.Stdout, "\r\n", log.LstdFlags)),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if strings.EqualFold(dbType, TypeSQLite) {
		// sqlite allows one writer; a single connection also keeps an
		// in-memory database alive for the life of the pool.
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	slog.Info("database connection established", "type", dialector.Name())
	return conn, nil
}

// newLogger reports slow statements and real failures. A missing row is an
// ordinary outcome for remark and vote lookups and is not logged.
func newLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate creates or updates the engine tables and the catalog projections.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.Remark{},
		&models.Vote{},
		&models.Course{},
		&models.Lesson{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	slog.Info("database migration completed")
	return nil
}
