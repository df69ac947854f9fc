package main

import (
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mcdev12/countdown/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loadConfig reads .env (if present), then the YAML file and environment.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}
	return config.Load("")
}

// setupLogging configures the global zerolog logger. LOG_FORMAT=json
// switches off the console writer for log shippers.
func setupLogging(level string, out io.Writer) {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
