package skeleton

import (
	"io"
	"log"
)

var (
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the logging streams for the skeleton package.
// The tracker reports nothing actionable, so the ops writer is unused.
// Pass nil for any writer to disable that stream.
func SetLogWriters(_, diag, trace io.Writer) {
	diagLogger = newLogger(diag)
	traceLogger = newLogger(trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[skeleton] ", log.LstdFlags|log.Lmicroseconds)
}

// diagf logs to the diag stream (configuration changes).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-request telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
