/*
Package logging wires up zerolog the way dafibh-fortuna-backend's
cmd/api/main.go does: a console writer in development, structured JSON
in production, driven off config rather than an ENV check on a web
framework.
*/
package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/condomx/billing-core/config"
)

// New builds a zerolog.Logger from a LoggingConfig.
func New(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out = os.Stderr
	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
