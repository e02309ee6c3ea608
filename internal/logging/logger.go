package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global zerolog level and a console writer on w (stderr when
// nil). level is one of debug, info, warn, error; anything else means info.
func Init(level string, w io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))
	if w == nil {
		w = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
	return log.Logger
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
