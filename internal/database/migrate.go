package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// Models lists every persisted model in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Course{},
		&models.CourseVersion{},
		&models.Assignment{},
		&models.AssignmentCycle{},
		&models.VideoProgress{},
		&models.Quiz{},
		&models.QuizQuestion{},
		&models.QuizChoice{},
		&models.QuizAttempt{},
		&models.QuizAnswer{},
		&models.AssignmentRule{},
		&models.AuditEvent{},
	}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
