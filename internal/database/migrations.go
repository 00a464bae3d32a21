package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillMemberSkills = "2025-06-02_backfill_member_skills"
	migrationNormalizeMemberEmail = "2025-06-19_normalize_member_email"
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
		{name: migrationBackfillMemberSkills, apply: backfillMemberSkills},
		{name: migrationNormalizeMemberEmail, apply: normalizeMemberEmail},
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

// Members inserted before skills became a JSON list may carry NULL.
func backfillMemberSkills(db *gorm.DB) error {
	return db.Model(&roster.Member{}).
		Where("skills IS NULL").
		Update("skills", "[]").Error
}

// Rows whose normalized address would clash with another member of the same
// tenant keep their stored value.
func normalizeMemberEmail(db *gorm.DB) error {
	return db.Model(&roster.Member{}).
		Where("email <> LOWER(TRIM(email))").
		Where(`NOT EXISTS (SELECT 1 FROM members AS other
			WHERE other.tenant_id = members.tenant_id
			AND other.id <> members.id
			AND LOWER(TRIM(other.email)) = LOWER(TRIM(members.email)))`).
		Update("email", gorm.Expr("LOWER(TRIM(email))")).Error
}
