package monitoring

import (
	"io"
	"log"
)

// DebugLog is one package's ops, diag and trace streams. Every stream is
// off until SetWriters gives it a writer.
//
//   - ops: actionable warnings, errors, data loss
//   - diag: day-to-day diagnostics and tuning context
//   - trace: high-frequency per-ray telemetry
type DebugLog struct {
	prefix string
	ops    *log.Logger
	diag   *log.Logger
	trace  *log.Logger
}

// NewDebugLog returns a DebugLog whose lines are prefixed with [name].
func NewDebugLog(name string) *DebugLog {
	return &DebugLog{prefix: "[" + name + "] "}
}

// SetWriters replaces all three streams. A nil writer disables that stream.
func (d *DebugLog) SetWriters(ops, diag, trace io.Writer) {
	d.ops = d.newLogger(ops)
	d.diag = d.newLogger(diag)
	d.trace = d.newLogger(trace)
}

func (d *DebugLog) newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, d.prefix, log.LstdFlags|log.Lmicroseconds)
}

func (d *DebugLog) Opsf(format string, args ...interface{}) {
	if d.ops != nil {
		d.ops.Printf(format, args...)
	}
}

func (d *DebugLog) Diagf(format string, args ...interface{}) {
	if d.diag != nil {
		d.diag.Printf(format, args...)
	}
}

func (d *DebugLog) Tracef(format string, args ...interface{}) {
	if d.trace != nil {
		d.trace.Printf(format, args...)
	}
}
