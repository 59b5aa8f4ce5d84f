package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillPitchVersions     = "2026-03-01_backfill_pitch_versions"
	migrationRecomputePitchAggregates  = "2026-03-08_recompute_pitch_aggregates"
	migrationNormalizeProfileEmailCase = "2026-03-15_normalize_profile_email_case"
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

var migrations = []migrationDefinition{
	{name: migrationBackfillPitchVersions, apply: backfillPitchVersions},
	{name: migrationRecomputePitchAggregates, apply: recomputePitchAggregates},
	{name: migrationNormalizeProfileEmailCase, apply: normalizeProfileEmailCase},
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
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillPitchVersions gives rows created before optimistic locking a starting version.
func backfillPitchVersions(db *gorm.DB) error {
	return db.Exec("UPDATE pitches SET version = 1 WHERE version IS NULL OR version < 1").Error
}

// recomputePitchAggregates rebuilds the derived columns from the viewer sub-records
// and the unique viewer list.
func recomputePitchAggregates(db *gorm.DB) error {
	err := db.Exec(`UPDATE pitches SET completion_rate = COALESCE((
		SELECT 100.0 * SUM(CASE WHEN pv.completed_video THEN 1 ELSE 0 END) / COUNT(*)
		FROM pitch_viewers pv WHERE pv.pitch_id = pitches.id
	), 0)`).Error
	if err != nil {
		return err
	}
	return db.Exec(`UPDATE pitches SET unique_viewer_count = CASE
		WHEN unique_viewers IS NULL OR unique_viewers = '' OR unique_viewers = 'null' THEN 0
		ELSE json_array_length(unique_viewers)
	END`).Error
}

func normalizeProfileEmailCase(db *gorm.DB) error {
	return db.Exec("UPDATE profiles SET email = lower(trim(email)) WHERE email <> lower(trim(email))").Error
}
