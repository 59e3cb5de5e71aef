package tracking

import (
	"io"
	"log"
)

var (
	opsLogger   *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the logging streams for the tracking package.
// The manager has no diag output. Pass nil for any writer to disable that
// stream.
func SetLogWriters(ops, _, trace io.Writer) {
	opsLogger = newLogger(ops)
	traceLogger = newLogger(trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[tracking] ", log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (tracking failures).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-request telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
