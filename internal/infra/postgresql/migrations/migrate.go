package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func all() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createShipmentsTable(),
		createScheduledDispatchesTable(),
		createMessageHistoryTable(),
		createSettingsTables(),
	}
}

// LatestVersion is the id of the newest migration this binary knows about.
func LatestVersion() string {
	migrations := all()
	return migrations[len(migrations)-1].ID
}

// Migrate applies every pending migration. It is meant to run as a deploy step, never on the request path.
func Migrate(db *gorm.DB) error {
	return gormigrate.New(db, gormigrate.DefaultOptions, all()).Migrate()
}

// Rollback reverts the most recent migration.
func Rollback(db *gorm.DB) error {
	return gormigrate.New(db, gormigrate.DefaultOptions, all()).RollbackLast()
}
