// Package migrations creates and updates the tables used by mcpchat's audit database.
package migrations

import (
	"fmt"

	"github.com/mcpjungle/mcpchat/internal/model"
	"gorm.io/gorm"
)

// Migrate creates or updates all tables required by mcpchat.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.ToolInvocation{}); err != nil {
		return fmt.Errorf("failed to migrate tool invocations table: %w", err)
	}
	return nil
}
