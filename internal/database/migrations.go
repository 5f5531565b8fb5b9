package database

import (
	"errors"
	"time"

	"github.com/chordfold/chordfold/internal/draft"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationPurgeUnversionedDrafts = "2026-06-20_purge_unversioned_drafts"

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

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationPurgeUnversionedDrafts, apply: purgeUnversionedDrafts},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// purgeUnversionedDrafts drops draft rows written before schema versioning
// was introduced. Recovery would discard them one by one anyway.
func purgeUnversionedDrafts(db *gorm.DB) error {
	return db.Where("schema_version <= 0").Delete(&draft.StoredDraft{}).Error
}
