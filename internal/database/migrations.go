package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/notifications"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationClearReadOpenMarkers = "2026-10-01_clear_read_open_markers"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var migrations = []migrationDefinition{
	{name: migrationClearReadOpenMarkers, apply: clearReadOpenMarkers},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		}); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// A read record can never be folded into again, so it must not hold the
// open-window marker for its batch key.
func clearReadOpenMarkers(db *gorm.DB) error {
	return db.Model(&notifications.IndividualNotification{}).
		Where("read_at_s IS NOT NULL AND open_batch_key IS NOT NULL").
		Update("open_batch_key", nil).Error
}
