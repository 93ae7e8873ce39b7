package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"gorm.io/gorm"
)

func createSettingsTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_settings",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.AutomationSettingsModel{}, &repository.MessageTemplateModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MessageTemplateModel{}, &repository.AutomationSettingsModel{})
		},
	}
}
