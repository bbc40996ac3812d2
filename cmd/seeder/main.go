package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/videobot/broadcast-backend/internal/db"
	"github.com/videobot/broadcast-backend/internal/logging"
)

func main() {
	log := logging.New("broadcast-seeder")

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, relying on OS environment variables")
	}

	conn, err := db.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer conn.Close()

	files := []string{
		"seed/schema.sql",
		"seed/users.sql",
		"seed/broadcasts.sql",
	}

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("failed to read seed file")
		}
		if _, err := conn.Exec(string(content)); err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("failed to execute seed file")
		}
		log.Info().Str("file", file).Msg("seeded")
	}

	log.Info().Msg("database seeding completed")
}
