package database

import (
	"fmt"
	"time"

	"signalmirror/src/database/migrations"
	"signalmirror/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// Models lists every table owned by this service, in creation order.
func Models() []interface{} {
	return []interface{}{
		&model.Strategy{},
		&model.TradingAccount{},
		&model.StrategyAccount{},
		&model.Signal{},
		&model.MirrorStatus{},
		&model.Execution{},
		&model.Position{},
		&model.TradeLog{},
		&model.Task{},
		&model.Exception{},
		&migrations.DataMigration{},
	}
}

// InitMainDB opens the main (read/write) database connection.
// Schema migrations are not run here, see Migrate.
func InitMainDB() error {
	config := GetConfig()
	db, err := gorm.Open(postgres.Open(config.DatabaseURLMain),
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to main database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from MainDB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	MainDB = db

	logrus.Info("[database] MainDB connection established")

	return nil
}

// Migrate runs AutoMigrate for every owned model followed by the data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}
