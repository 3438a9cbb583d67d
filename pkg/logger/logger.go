// Package logger defines the logging contract shared by the daemon and
// the fetch library, with console, file and test-double backends.
package logger

// Logger is the minimal logging surface components depend on. Severity
// is limited to the three levels the daemon actually distinguishes.
type Logger interface {
	// Info reports normal progress ("daemon started", "task completed").
	Info(format string, args ...interface{})

	// Warning reports recoverable trouble ("retry attempt 2/5").
	Warning(format string, args ...interface{})

	// Error reports failures ("transfer failed: connection reset").
	Error(format string, args ...interface{})

	// Close releases whatever the backend holds open. Backends without
	// resources return nil.
	Close() error
}

// NopLogger drops every message. Constructors substitute one when a
// caller passes a nil Logger.
type NopLogger struct{}

// NewNopLogger returns a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (NopLogger) Info(format string, args ...interface{})    {}
func (NopLogger) Warning(format string, args ...interface{}) {}
func (NopLogger) Error(format string, args ...interface{})   {}
func (NopLogger) Close() error                               { return nil }

var _ Logger = (*NopLogger)(nil)
