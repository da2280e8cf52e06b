package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"steam-inventory/internal/models"
)

func Initialize(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", databaseURL, err)
	}

	// Auto migrate the schema
	err = db.AutoMigrate(
		&models.ItemDefinition{},
		&models.ItemDefinitionProperty{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logrus.WithField("database", databaseURL).Info("Database initialized successfully")
	return db, nil
}
