package logger

import "github.com/hashicorp/go-multierror"

// MultiLogger fans each message out to every backend, typically a
// console logger plus a FileLogger.
type MultiLogger struct {
	backends []Logger
}

// NewMultiLogger combines the given backends into one Logger. Messages
// reach every backend in order.
func NewMultiLogger(backends ...Logger) *MultiLogger {
	return &MultiLogger{backends: backends}
}

func (m *MultiLogger) Info(format string, args ...interface{}) {
	for _, b := range m.backends {
		b.Info(format, args...)
	}
}

func (m *MultiLogger) Warning(format string, args ...interface{}) {
	for _, b := range m.backends {
		b.Warning(format, args...)
	}
}

func (m *MultiLogger) Error(format string, args ...interface{}) {
	for _, b := range m.backends {
		b.Error(format, args...)
	}
}

// Close closes every backend and aggregates their errors.
func (m *MultiLogger) Close() error {
	var errs *multierror.Error
	for _, b := range m.backends {
		errs = multierror.Append(errs, b.Close())
	}
	return errs.ErrorOrNil()
}

var _ Logger = (*MultiLogger)(nil)
