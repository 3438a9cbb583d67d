package logger

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestStandardLogger_Prefixes verifies each level carries its prefix.
func TestStandardLogger_Prefixes(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(log.New(&buf, "", 0))

	l.Info("started with %d workers", 4)
	l.Warning("retry %d/%d", 1, 5)
	l.Error("transfer failed: %s", "connection reset")
	if err := l.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("logged %d lines, want 3", len(lines))
	}
	if lines[0] != "[INFO] started with 4 workers" {
		t.Errorf("info line = %q", lines[0])
	}
	if lines[1] != "[WARNING] retry 1/5" {
		t.Errorf("warning line = %q", lines[1])
	}
	if lines[2] != "[ERROR] transfer failed: connection reset" {
		t.Errorf("error line = %q", lines[2])
	}
}

// TestFileLogger_WritesAndCloses verifies file output and resource release.
func TestFileLogger_WritesAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	fl.Info("listening on %s", "socket")
	fl.Error("boom")
	if err := fl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[INFO] listening on socket") {
		t.Errorf("missing info line in %q", out)
	}
	if !strings.Contains(out, "[ERROR] boom") {
		t.Errorf("missing error line in %q", out)
	}

	// reopening appends rather than truncating
	fl2, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	fl2.Info("second run")
	fl2.Close()
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "[ERROR] boom") || !strings.Contains(string(data), "second run") {
		t.Errorf("append lost earlier lines: %q", string(data))
	}
}

// TestMockLogger_Records verifies call recording for test assertions.
func TestMockLogger_Records(t *testing.T) {
	m := NewMockLogger()
	m.Info("a %d", 1)
	m.Warning("b")
	m.Error("c")
	m.Close()

	if len(m.InfoCalls) != 1 || m.InfoCalls[0] != "a 1" {
		t.Errorf("InfoCalls = %v", m.InfoCalls)
	}
	if len(m.WarningCalls) != 1 || len(m.ErrorCalls) != 1 {
		t.Errorf("calls = %v / %v", m.WarningCalls, m.ErrorCalls)
	}
	if !m.CloseCalled {
		t.Error("Close not recorded")
	}
}

// closeFailLogger fails on Close to exercise MultiLogger aggregation.
type closeFailLogger struct {
	NopLogger
	err error
}

func (c *closeFailLogger) Close() error { return c.err }

// TestMultiLogger_Broadcast verifies fan-out and Close error handling.
func TestMultiLogger_Broadcast(t *testing.T) {
	a := NewMockLogger()
	b := NewMockLogger()
	failErr := errors.New("flush failed")
	m := NewMultiLogger(a, b, &closeFailLogger{err: failErr})

	m.Info("hello %s", "world")
	m.Error("oops")

	for i, mock := range []*MockLogger{a, b} {
		if len(mock.InfoCalls) != 1 || mock.InfoCalls[0] != "hello world" {
			t.Errorf("backend %d InfoCalls = %v", i, mock.InfoCalls)
		}
		if len(mock.ErrorCalls) != 1 {
			t.Errorf("backend %d ErrorCalls = %v", i, mock.ErrorCalls)
		}
	}

	if err := m.Close(); !errors.Is(err, failErr) {
		t.Errorf("Close = %v, want first backend error", err)
	}
	if !a.CloseCalled || !b.CloseCalled {
		t.Error("Close must reach every backend")
	}
}
