package control

import (
	"io"
	"log"
)

var diagLogger *log.Logger

// SetLogWriters configures the logging streams for the control package.
// Only diag is used. Pass nil to disable it.
func SetLogWriters(_, diag, _ io.Writer) {
	if diag == nil {
		diagLogger = nil
		return
	}
	diagLogger = log.New(diag, "[control] ", log.LstdFlags|log.Lmicroseconds)
}

// diagf logs to the diag stream (parameter changes).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
