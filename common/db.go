package common

import (
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func ConnectDb(dbFile string) *gorm.DB {
	log.Info().Str("sqlite_db", dbFile).Msg("attemptConnectDb")
	if dbFile == "" {
		log.Error().Msg("SQLITE_DB not set")
		return nil
	}

	db, err := gorm.Open(sqlite.Open(dbFile+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
		NowFunc:                                  UTCNow,
	})
	if err != nil {
		log.Error().Err(err).Msg("error opening sqlite db")
		return nil
	}

	// one connection, so concurrent transactions queue instead of hitting SQLITE_BUSY
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info().Str("sqlite_db", dbFile).Msg("opened sqlite db")
	return db
}

// ConnectAnalyticsDb opens the separate visit-counter database.
func ConnectAnalyticsDb(analyticsDbFile string) *gorm.DB {
	if analyticsDbFile == "" {
		log.Info().Msg("ANALYTICS_DB not set - analytics will be disabled")
		return nil
	}

	db, err := gorm.Open(sqlite.Open(analyticsDbFile), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
		NowFunc:                                  UTCNow,
	})
	if err != nil {
		log.Error().Err(err).Msg("error opening analytics sqlite db")
		return nil
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info().Str("analytics_db", analyticsDbFile).Msg("opened analytics sqlite db")
	return db
}
