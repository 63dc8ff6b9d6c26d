package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/avatar"
	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillProfileAvatars = "2025-06-01_backfill_profile_avatars"

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

func dataMigrations(style avatar.Style) []migrationDefinition {
	return []migrationDefinition{
		{name: migrationBackfillProfileAvatars, apply: backfillProfileAvatars(style)},
	}
}

// applyMigrations runs each migration once, recording it in db_migrations.
func applyMigrations(db *gorm.DB, migrations []migrationDefinition, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return fmt.Errorf("database: migration %s: %w", migration.name, err)
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func backfillProfileAvatars(style avatar.Style) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		var missing []profiles.Profile
		err := db.Where("avatar_url IS NULL AND email IS NOT NULL AND email <> ''").
			Find(&missing).Error
		if err != nil {
			return err
		}
		for _, profile := range missing {
			url := style.URL(*profile.Email)
			if url == "" {
				continue
			}
			if err := db.Model(&profiles.Profile{}).
				Where("id = ?", profile.ID).
				Update("avatar_url", url).Error; err != nil {
				return err
			}
		}
		return nil
	}
}
