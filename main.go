package main

import (
	"os"
	"time"

	"example.com/showtime/services/notifier/cmd"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// LOG_LEVEL overrides the default before config is even loaded, so
	// startup problems in config parsing are already visible at debug
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if level, err := zerolog.ParseLevel(raw); err == nil {
			zerolog.SetGlobalLevel(level)
		} else {
			log.Warn().Str("log_level", raw).Msg("Unknown LOG_LEVEL, keeping info")
		}
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("notifier exited with error")
	}
}
