// Package logging configures zerolog for the markup command.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs a console logger writing to w (stderr when nil).
// A positive verbosity (the -v count) wins over the configured level.
func Setup(w io.Writer, verbosity int, level string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.SetGlobalLevel(Level(verbosity, level))

	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
		NoColor:    !IsTerminal(w),
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	if verbosity >= 2 {
		log.Logger = log.Logger.With().Caller().Logger()
	}
	log.Debug().Int("verbosity", verbosity).Str("level", level).Msg("Logger initialized")
	return log.Logger
}

// Level maps a -v count, or failing that a config level name, to a zerolog level.
func Level(verbosity int, level string) zerolog.Level {
	switch {
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	case verbosity >= 3:
		return zerolog.TraceLevel
	}
	if level == "disabled" {
		return zerolog.Disabled
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.WarnLevel
	}
	return l
}

// Get returns the global logger tagged with a component name.
func Get(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
