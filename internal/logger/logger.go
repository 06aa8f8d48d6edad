// Package logger configures the zerolog logger shared by the server.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// ServiceName is attached to every log line.
const ServiceName = "ticket-reservation"

// New returns a logger at the given level.  In dev the output is the
// human-readable console writer, elsewhere JSON with unix timestamps.  The
// global zerolog logger is replaced as well.
func New(level, env string) zerolog.Logger {
	return newWithWriter(os.Stdout, level, env)
}

func newWithWriter(w io.Writer, level, env string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "dev" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).Level(lvl).With().Timestamp().Str("service", ServiceName).Logger()
	zlog.Logger = l
	return l
}
