package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"gorm.io/gorm"
)

func createShipmentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_shipments",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ShipmentModel{}, &repository.StatusHistoryModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_shipments_external_order_id ON shipments (external_order_id) WHERE external_order_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments (LOWER(TRIM(status)))`,
				`CREATE INDEX IF NOT EXISTS idx_status_history_shipment_id ON status_history (shipment_id, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.StatusHistoryModel{}, &repository.ShipmentModel{})
		},
	}
}
