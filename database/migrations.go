package database

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"donusum/models"
	"donusum/stage"
)

// RunMigrations creates the tables and seeds the stage catalog into an
// empty database.
func RunMigrations(db *gorm.DB) error {
	log.Info().Msg("running database migrations")

	err := db.AutoMigrate(
		&models.Operator{},
		&models.Stage{},
		&models.Post{},
		&models.PageContent{},
	)
	if err != nil {
		log.Error().Err(err).Msg("migrations failed")
		return err
	}

	if err := stage.Seed(db); err != nil {
		log.Error().Err(err).Msg("seeding stages failed")
		return err
	}

	log.Info().Msg("migrations completed")
	return nil
}
