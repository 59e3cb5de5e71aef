package depth

import (
	"io"
	"log"
)

var traceLogger *log.Logger

// SetLogWriters configures logging for the depth package. Only the trace
// stream is used here; ops and diag are accepted so every pipeline package
// shares the same signature.
func SetLogWriters(_, _, trace io.Writer) {
	if trace == nil {
		traceLogger = nil
		return
	}
	traceLogger = log.New(trace, "[depth] ", log.LstdFlags|log.Lmicroseconds)
}

// tracef logs to the trace stream (per-frame telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
