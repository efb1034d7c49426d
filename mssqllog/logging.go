package mssqllog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogging configures the package-wide zerolog logger: a console writer
// to stderr, with error reserved for fatal conditions, warn for
// skipped-but-notable pages/segments, debug for per-record skip reasons,
// and info for phase transitions. verbose raises the level to debug;
// otherwise info is the default floor.
func InitLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(console).With().Timestamp().Logger()
}
