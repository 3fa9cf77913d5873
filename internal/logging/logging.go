// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger for the given environment. Development gets a
// console writer, production gets JSON lines. An empty or unknown level
// falls back to debug in development and info otherwise.
func New(environment, level string) zerolog.Logger {
	return newWithWriter(os.Stdout, environment, level)
}

func newWithWriter(out io.Writer, environment, level string) zerolog.Logger {
	if environment != "production" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.DebugLevel
		if environment == "production" {
			lvl = zerolog.InfoLevel
		}
	}

	return zerolog.New(out).Level(lvl).With().
		Timestamp().
		Str("env", environment).
		Logger()
}
