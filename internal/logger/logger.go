package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger for the given environment.
// Development gets a human readable console writer, everything else JSON.
func Setup(environment string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if environment == "production" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "battle").Logger()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}
