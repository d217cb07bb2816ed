package repository

import (
	"log"
	"os"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/config"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrRecordNotFound = gorm.ErrRecordNotFound
	ErrDuplicateKey   = gorm.ErrDuplicatedKey
)

// InitDB opens the configured database. Schema changes are left to Migrate.
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	return Open(cfg.DSN(), cfg.DBLog)
}

func Open(dsn string, logSQL bool) (*gorm.DB, error) {
	level := logger.Silent
	if logSQL {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NowFunc:        Now,
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	return db, nil
}

// Migrate is idempotent.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Conversation{},
		&models.Participant{},
		&models.Message{},
		&models.ReadMarker{},
	); err != nil {
		return errors.Wrap(err, "auto-migrate")
	}

	// One active stint per (conversation, user).
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_active
		ON participants (conversation_id, user_id)
		WHERE left_at IS NULL
	`).Error; err != nil {
		return errors.Wrap(err, "create active participant index")
	}
	return nil
}

// Now is the store clock. Postgres keeps microseconds, so timestamps are
// truncated before they are used as ordering keys.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
