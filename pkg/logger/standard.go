package logger

import (
	"log"
	"os"
)

// StandardLogger prints levelled messages through a stdlib *log.Logger,
// so the caller controls destination, flags and prefix.
type StandardLogger struct {
	logger *log.Logger
}

// NewStandardLogger wraps the given *log.Logger.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

func (s *StandardLogger) printf(level, format string, args []interface{}) {
	s.logger.Printf(level+" "+format, args...)
}

// Info logs at [INFO].
func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.printf("[INFO]", format, args)
}

// Warning logs at [WARNING].
func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.printf("[WARNING]", format, args)
}

// Error logs at [ERROR].
func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.printf("[ERROR]", format, args)
}

// Close is a no-op; the wrapped *log.Logger owns no resources.
func (s *StandardLogger) Close() error {
	return nil
}

// FileLogger appends timestamped, levelled lines to a log file.
// Close releases the file handle.
type FileLogger struct {
	f   *os.File
	std *StandardLogger
}

// NewFileLogger opens (or creates) path for appending and returns a
// logger writing to it.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		f:   f,
		std: NewStandardLogger(log.New(f, "", log.LstdFlags)),
	}, nil
}

func (fl *FileLogger) Info(format string, args ...interface{}) {
	fl.std.Info(format, args...)
}

func (fl *FileLogger) Warning(format string, args ...interface{}) {
	fl.std.Warning(format, args...)
}

func (fl *FileLogger) Error(format string, args ...interface{}) {
	fl.std.Error(format, args...)
}

// Close closes the underlying log file.
func (fl *FileLogger) Close() error {
	return fl.f.Close()
}

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*FileLogger)(nil)
)
