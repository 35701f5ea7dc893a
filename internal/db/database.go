package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/internal/db/models"
)

func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host,
		cfg.Username,
		cfg.Password,
		cfg.Name,
		cfg.Port,
		cfg.SSLMode,
	)
}

func Initialize(cfg *config.Configuration, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.Server.Environment == "development" {
		level = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(level),
	}

	db, err := gorm.Open(postgres.Open(DSN(cfg.Database)), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	if err := runMigrations(db, log); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *gorm.DB, log *zap.Logger) error {
	log.Info("Running database migrations")

	return db.AutoMigrate(
		&models.User{},
		&models.Document{},
	)
}
