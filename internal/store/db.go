package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"redis-job-pipeline/internal/domain"
)

var ErrNotFound = errors.New("not found")

// DB is the metadata store shared by the handlers: stored files, webhooks
// and the delivery ledger.
type DB struct {
	db *gorm.DB
}

// Open connects to Postgres for postgres:// URLs and to SQLite otherwise,
// then migrates the schema.
func Open(dsn string) (*DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := gdb.AutoMigrate(&domain.StoredFile{}, &domain.Webhook{}, &domain.WebhookDelivery{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{db: gdb}, nil
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
