package monitoring

import (
	"fmt"
	"io"
	"log"
)

// Logf is the process-wide logger used by commands and the storage layer.
// It defaults to log.Printf but may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Streams holds the three writers handed to each engine package's
// SetLogWriters: ops (actionable problems, missing data), diag (per grid swap
// and per localisation summaries) and trace (per ray telemetry).
// A nil writer disables that stream.
type Streams struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// StreamsForLevel enables the streams up to and including level, all
// writing to w. Valid levels are "off", "ops", "diag" and "trace".
func StreamsForLevel(level string, w io.Writer) (Streams, error) {
	switch level {
	case "off":
		return Streams{}, nil
	case "ops", "":
		return Streams{Ops: w}, nil
	case "diag":
		return Streams{Ops: w, Diag: w}, nil
	case "trace":
		return Streams{Ops: w, Diag: w, Trace: w}, nil
	default:
		return Streams{}, fmt.Errorf("unknown log level %q (want off, ops, diag or trace)", level)
	}
}
