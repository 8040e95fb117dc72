package metagrid

import (
	"io"

	"github.com/banshee-data/stereogrid/internal/monitoring"
)

var debugLog = monitoring.NewDebugLog("metagrid")

// SetLogWriters configures the ops, diag and trace streams for the metagrid
// package. Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	debugLog.SetWriters(ops, diag, trace)
}

func opsf(format string, args ...interface{})   { debugLog.Opsf(format, args...) }
func diagf(format string, args ...interface{})  { debugLog.Diagf(format, args...) }
func tracef(format string, args ...interface{}) { debugLog.Tracef(format, args...) }
