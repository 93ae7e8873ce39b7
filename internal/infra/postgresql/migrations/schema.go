package migrations

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

var ErrSchemaOutdated = errors.New("database schema is not up to date")

// SchemaState caches the outcome of a schema check for the lifetime of the process.
type SchemaState struct {
	mu      sync.Mutex
	checked bool
}

// Ensure runs CheckSchema once and returns the cached result afterwards.
// A failed check is not cached so a later call can succeed once migrations ran.
func (s *SchemaState) Ensure(db *gorm.DB) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checked {
		return nil
	}
	if err := CheckSchema(db); err != nil {
		return err
	}
	s.checked = true
	return nil
}

// Ready reports whether a previous Ensure call succeeded.
func (s *SchemaState) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checked
}

// Reset drops the cached result.
func (s *SchemaState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = false
}

// CheckSchema verifies that the newest known migration has been applied.
func CheckSchema(db *gorm.DB) error {
	opts := gormigrate.DefaultOptions
	if !db.Migrator().HasTable(opts.TableName) {
		return fmt.Errorf("%w: table %q missing, run the migrate command", ErrSchemaOutdated, opts.TableName)
	}

	var count int64
	err := db.Table(opts.TableName).
		Where(fmt.Sprintf("%s = ?", opts.IDColumnName), LatestVersion()).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: migration %s not applied", ErrSchemaOutdated, LatestVersion())
	}
	return nil
}
