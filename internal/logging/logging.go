// Package logging builds the structured logger shared by the visualizer, its
// event loop, and the command line.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logger type accepted by loopviz and eventloop options.
type Logger = *logiface.Logger[logiface.Event]

// Config selects the level and destination of log output.
type Config struct {
	// Level is one of trace, debug, info, notice, warning, error, or
	// disabled. Defaults to warning.
	Level string `toml:"level"`

	// File receives the log output, if set. Defaults to stderr.
	File string `toml:"file"`
}

var levels = map[string]logiface.Level{
	`trace`:    logiface.LevelTrace,
	`debug`:    logiface.LevelDebug,
	`info`:     logiface.LevelInformational,
	`notice`:   logiface.LevelNotice,
	`warn`:     logiface.LevelWarning,
	`warning`:  logiface.LevelWarning,
	`err`:      logiface.LevelError,
	`error`:    logiface.LevelError,
	`crit`:     logiface.LevelCritical,
	`disabled`: logiface.LevelDisabled,
	`off`:      logiface.LevelDisabled,
	`none`:     logiface.LevelDisabled,
}

// ParseLevel converts a level name, ignoring case. An empty string is the
// default level (warning).
func ParseLevel(s string) (logiface.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == `` {
		return logiface.LevelWarning, nil
	}
	if level, ok := levels[s]; ok {
		return level, nil
	}
	return logiface.LevelDisabled, fmt.Errorf(`logging: unknown level: %q`, s)
}

// New returns a JSON logger writing to w, or nil if level is disabled.
func New(w io.Writer, level logiface.Level) Logger {
	return newLogger(w, level, `time`)
}

// newLogger allows the time field to be disabled (empty), for tests.
func newLogger(w io.Writer, level logiface.Level, timeField string) Logger {
	if !level.Enabled() {
		return nil
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField(timeField),
		),
		stumpy.L.WithLevel(level),
	).Logger()
}

// Open builds the logger described by cfg. The returned close function must
// be called once logging is complete, and is never nil.
func Open(cfg Config, stderr io.Writer) (Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if cfg.File == `` || !level.Enabled() {
		return New(stderr, level), func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf(`logging: open log file: %w`, err)
	}
	return New(f, level), f.Close, nil
}
