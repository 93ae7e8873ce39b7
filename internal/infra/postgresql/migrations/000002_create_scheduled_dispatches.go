package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"gorm.io/gorm"
)

func createScheduledDispatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_scheduled_dispatches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ScheduledDispatchModel{}); err != nil {
				return err
			}
			// The claim in AutomationRepository.ClaimStep relies on this constraint.
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_scheduled_dispatches_shipment_status ON scheduled_dispatches (shipment_id, target_status)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ScheduledDispatchModel{})
		},
	}
}
