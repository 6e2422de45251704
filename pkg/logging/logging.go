// Package logging builds the two-sink logger used by the fidi server: a
// console sink for information and above, and a file sink for debug and
// above. Records carry a timestamp, the process id, the level, and the
// message.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// New opens <dir>/<file> for appending and returns a logger fanning out to
// the console and file sinks. The returned closer releases the log file.
// Fails when the directory does not exist or the file cannot be opened.
func New(dir, file string) (zerolog.Logger, func() error, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("log directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return zerolog.Nop(), nil, fmt.Errorf("log directory %q is not a directory", dir)
	}

	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file %q: %w", path, err)
	}

	console := &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{
			Writer: zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
		},
		Level: zerolog.InfoLevel,
	}
	sink := &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: f},
		Level:  zerolog.DebugLevel,
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(console, sink)).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger()
	return logger, f.Close, nil
}

// Level pairs one of the request language's log_<level> attributes with
// the zerolog level it maps onto. Levels lists them in emission order.
type Level struct {
	Attr  string
	Name  string
	Value zerolog.Level
}

// Levels is the fixed emission order for the log_<level> attributes.
// notice and critical have no zerolog equivalent and map to the nearest
// level; Emit preserves the original name in a severity field.
var Levels = []Level{
	{Attr: "log_trace", Name: "trace", Value: zerolog.TraceLevel},
	{Attr: "log_debug", Name: "debug", Value: zerolog.DebugLevel},
	{Attr: "log_information", Name: "information", Value: zerolog.InfoLevel},
	{Attr: "log_notice", Name: "notice", Value: zerolog.InfoLevel},
	{Attr: "log_warning", Name: "warning", Value: zerolog.WarnLevel},
	{Attr: "log_error", Name: "error", Value: zerolog.ErrorLevel},
	{Attr: "log_critical", Name: "critical", Value: zerolog.ErrorLevel},
	{Attr: "log_fatal", Name: "fatal", Value: zerolog.FatalLevel},
}

// Emit logs msg at l's level. WithLevel is used throughout so that
// log_fatal records a fatal-level message without terminating the process.
func Emit(logger *zerolog.Logger, l Level, msg string) {
	ev := logger.WithLevel(l.Value)
	if l.Name == "notice" || l.Name == "critical" {
		ev = ev.Str("severity", l.Name)
	}
	ev.Msg(msg)
}
