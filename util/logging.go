package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	Logger zerolog.Logger
)

func parseLevel(inlevel string) zerolog.Level {
	switch strings.ToLower(inlevel) {
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogInit sets up the global logger on stderr. format "json" writes raw
// zerolog events, anything else the human readable console format.
func LogInit(inlevel string, format string) {
	LogInitTo(os.Stderr, inlevel, format)
}

func LogInitTo(out io.Writer, inlevel string, format string) {
	level := parseLevel(inlevel)
	var w io.Writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	if strings.ToLower(format) == "json" {
		w = out
	}
	Logger = zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()

	Logger.Info().Msgf("logging initialized at level %v", level)
}
