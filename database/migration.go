package database

import (
	"fmt"

	"github.com/marionridgway/Project-Reactor/models"

	"gorm.io/gorm"
)

// Migrate creates the experiments, reagents and sensor_log tables from
// the model definitions. The schema is fixed; there is no versioned
// migration history to maintain.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
