package database

import (
	"errors"
	"time"

	"github.com/draxon/draxon-bots/internal/members"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillHandleKeys   = "2025-01-12_backfill_handle_keys"
	migrationNormalizeOrgStatuses = "2025-01-12_normalize_org_statuses"
)

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
		{name: migrationBackfillHandleKeys, apply: backfillHandleKeys},
		{name: migrationNormalizeOrgStatuses, apply: normalizeOrgStatuses},
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

// backfillHandleKeys fills the case-insensitive lookup column for profiles imported before it existed.
func backfillHandleKeys(db *gorm.DB) error {
	return db.Model(&members.Profile{}).
		Where("handle_key IS NULL OR handle_key = ''").
		Update("handle_key", gorm.Expr("lower(trim(handle))")).Error
}

// normalizeOrgStatuses rewrites lower-case statuses written by older importers.
func normalizeOrgStatuses(db *gorm.DB) error {
	for _, status := range []members.OrgStatus{members.StatusMain, members.StatusAffiliate, members.StatusNotFound} {
		err := db.Model(&members.Profile{}).
			Where("lower(org_status) = lower(?) AND org_status <> ?", string(status), string(status)).
			Update("org_status", string(status)).Error
		if err != nil {
			return err
		}
	}
	return nil
}
