package fetchlib

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"
)

// TestBackoff_Growth verifies the backoff grows exponentially and stays
// under the cap.
func TestBackoff_Growth(t *testing.T) {
	c := RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
	if got := c.Backoff(0); got != time.Second {
		t.Errorf("Backoff(0) = %v, want 1s", got)
	}
	if got := c.Backoff(2); got != 4*time.Second {
		t.Errorf("Backoff(2) = %v, want 4s", got)
	}
	if got := c.Backoff(10); got != 10*time.Second {
		t.Errorf("Backoff(10) = %v, want cap 10s", got)
	}
	if got := c.Backoff(-3); got != time.Second {
		t.Errorf("Backoff(-3) = %v, want 1s", got)
	}
}

// TestBackoff_Jitter verifies jittered delays stay within the expected
// band around the exponential base.
func TestBackoff_Jitter(t *testing.T) {
	c := RetryConfig{
		MaxRetries:   5,
		BaseDelay:    time.Second,
		MaxDelay:     time.Hour,
		JitterFactor: 0.25,
	}
	for i := 0; i < 50; i++ {
		got := c.Backoff(1)
		if got < 1500*time.Millisecond || got > 2500*time.Millisecond {
			t.Fatalf("jittered Backoff(1) = %v, want within 2s +/- 25%%", got)
		}
	}
}

// TestShouldRetry verifies the retry decision honors both the category
// and the attempt cap.
func TestShouldRetry(t *testing.T) {
	c := RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute}

	netErr := NewTransferError(CategoryNetwork, "range-get", io.ErrUnexpectedEOF)
	if !c.ShouldRetry(0, netErr) {
		t.Error("network error at attempt 0 must be retryable")
	}
	if c.ShouldRetry(3, netErr) {
		t.Error("network error at the cap must not be retried")
	}

	diskErr := NewTransferError(CategoryStorage, "write", errors.New("no space left on device"))
	if c.ShouldRetry(0, diskErr) {
		t.Error("storage errors must never be retried")
	}
}

// TestClassify verifies the error taxonomy mapping for the cases the
// scheduler depends on.
func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"transfer error keeps category", NewTransferError(CategoryServer, "probe", errors.New("502")), CategoryServer},
		{"wrapped transfer error", io.EOF, CategoryNetwork},
		{"context canceled", context.Canceled, CategoryCancelled},
		{"deadline exceeded", context.DeadlineExceeded, CategoryTimeout},
		{"acquire timeout", ErrAcquireTimeout, CategoryTimeout},
		{"rate limited", ErrRateLimited, CategoryRateLimited},
		{"unexpected eof", io.ErrUnexpectedEOF, CategoryNetwork},
		{"permission", os.ErrPermission, CategoryPermission},
		{"path error", &os.PathError{Op: "open", Path: "/x", Err: errors.New("denied")}, CategoryStorage},
		{"unknown", errors.New("mystery"), CategoryNetwork},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// TestReasonFor verifies fatal categories carry a remediation hint.
func TestReasonFor(t *testing.T) {
	r := ReasonFor(NewTransferError(CategoryStorage, "write", errors.New("disk full")))
	if r.Category != "storage" || r.Retryable {
		t.Errorf("storage reason = %+v, want non-retryable storage", r)
	}
	if r.Remedy == "" {
		t.Error("storage reason must carry a remedy")
	}

	r = ReasonFor(errors.New("opaque"))
	if r.Category != "unknown" || r.Retryable {
		t.Errorf("opaque reason = %+v, want non-retryable unknown", r)
	}
}
