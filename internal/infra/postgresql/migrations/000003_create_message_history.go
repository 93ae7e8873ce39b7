package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"gorm.io/gorm"
)

func createMessageHistoryTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_message_history",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MessageHistoryModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_message_history_shipment_created ON message_history (shipment_id, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MessageHistoryModel{})
		},
	}
}
