// Package logging builds the zerolog logger shared by the tools.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console output instead of JSON
	File   string // optional log file, appended to
}

// TimeFormat matches the microsecond timestamps of log.Lmicroseconds.
const TimeFormat = "15:04:05.000000"

// New returns a logger writing to out (and to cfg.File when set) and a
// function closing the log file.
func New(cfg Config, out io.Writer) (zerolog.Logger, func() error, error) {
	nop := func() error { return nil }
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nop, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	w := out
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: TimeFormat}
	}
	closer := nop
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nop, fmt.Errorf("failed to open log file: %w", err)
		}
		w = zerolog.MultiLevelWriter(w, f)
		closer = f.Close
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}
