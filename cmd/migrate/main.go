// Command migrate applies or rolls back the embedded database migrations.
package main

import (
	"flag"
	"os"

	"github.com/kiranshivaraju/memberbase/internal/config"
	"github.com/kiranshivaraju/memberbase/internal/logging"
	"github.com/kiranshivaraju/memberbase/internal/store"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	logger := logging.NewWithWriter(os.Stderr, os.Getenv("LOG_LEVEL"))

	db, err := config.LoadDatabase(".env")
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	if err := store.Migrate(db.URL, *direction); err != nil {
		logger.Fatal().Err(err).Str("direction", *direction).Msg("migrate")
	}
	logger.Info().Str("direction", *direction).Msg("migrations applied")
}
