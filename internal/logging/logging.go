package logging

import (
	"io"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to w. Debug output is enabled by
// verbose; noColor disables ANSI colours in the console writer.
func New(w io.Writer, verbose, noColor bool) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    noColor,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Logger()
}
