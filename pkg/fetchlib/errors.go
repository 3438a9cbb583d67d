package fetchlib

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTaskNotFound     = errors.New("task you are looking for is not found")
	ErrTaskNotResumable = errors.New("task you are trying to resume has nothing to resume")
	ErrTaskActive       = errors.New("task you are trying to remove is currently downloading")

	ErrCacheMiss = errors.New("no cached metadata for this identifier")

	// ErrAcquireTimeout is returned when a slot or token wait outlives
	// its deadline. Treated as transient by the scheduler.
	ErrAcquireTimeout = errors.New("timed out waiting for a slot")
	// ErrRateLimited is returned by TryAcquire while a server cool-down
	// is in effect.
	ErrRateLimited = errors.New("server cool-down in effect")
	// ErrNoFreeSlots is returned by TryAcquire when all slots are held.
	ErrNoFreeSlots = errors.New("all slots are in use")

	ErrThrottleRemoved = errors.New("throttle has been removed from its manager")
)

// ErrorCategory classifies transfer failures for retry decisions
// and for the structured reason surfaced on terminal error states.
type ErrorCategory int

const (
	// CategoryNetwork covers transient connectivity failures.
	CategoryNetwork ErrorCategory = iota
	// CategoryServer covers 5xx responses.
	CategoryServer
	// CategoryRateLimited covers 429/503 with a Retry-After delay.
	CategoryRateLimited
	// CategoryStorage covers disk-full and write failures. Fatal.
	CategoryStorage
	// CategoryPermission covers filesystem permission failures. Fatal.
	CategoryPermission
	// CategoryCorruption covers post-download checksum mismatches. Fatal.
	CategoryCorruption
	// CategoryCancelled covers user-initiated aborts. Not an error.
	CategoryCancelled
	// CategoryTimeout covers expired acquire/consume deadlines. Transient.
	CategoryTimeout
	// CategoryNotFound covers 404 responses. Fatal, not a transient
	// condition worth retrying.
	CategoryNotFound
)

// String returns the category name used in logs and RPC responses.
func (c ErrorCategory) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryServer:
		return "server"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryStorage:
		return "storage"
	case CategoryPermission:
		return "permission"
	case CategoryCorruption:
		return "corruption"
	case CategoryCancelled:
		return "cancelled"
	case CategoryTimeout:
		return "timeout"
	case CategoryNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Retryable reports whether the scheduler may retry this category.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryServer, CategoryRateLimited, CategoryTimeout:
		return true
	default:
		return false
	}
}

// TransferError is a structured error from a transfer attempt.
// Use errors.As to extract and inspect transfer errors.
type TransferError struct {
	// Category classifies the failure for retry policy.
	Category ErrorCategory
	// Op is the operation that failed (e.g., "probe", "range-get", "write").
	Op string
	// Cause is the underlying error.
	Cause error
	// RetryAfter is the server-suggested delay, if any (429/503).
	RetryAfter time.Duration
}

// Error implements the error interface.
// Format: "category op: cause"
func (e *TransferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s", e.Category, e.Op, e.Cause.Error())
	}
	return fmt.Sprintf("%s %s", e.Category, e.Op)
}

// Unwrap returns the underlying cause, enabling errors.Is/As chaining.
func (e *TransferError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the scheduler may retry this error.
func (e *TransferError) Retryable() bool {
	return e.Category.Retryable()
}

// SuggestedDelay returns the minimum delay before a retry should be
// attempted, or zero if the server did not suggest one.
func (e *TransferError) SuggestedDelay() time.Duration {
	return e.RetryAfter
}

// NewTransferError creates a TransferError with the given category.
func NewTransferError(category ErrorCategory, op string, cause error) *TransferError {
	return &TransferError{
		Category: category,
		Op:       op,
		Cause:    cause,
	}
}

// FailureReason is the structured reason attached to a task in the
// error state. Fatal categories carry a remediation hint instead of a
// blind retry offer.
type FailureReason struct {
	Category  string `json:"category"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	// Remedy suggests a manual action for non-retryable failures
	// (free disk space, grant permission, re-download).
	Remedy string `json:"remedy,omitempty"`
}

// ReasonFor builds a FailureReason from any error, unwrapping
// TransferError when present.
func ReasonFor(err error) FailureReason {
	var te *TransferError
	if !errors.As(err, &te) {
		return FailureReason{
			Category:  "unknown",
			Message:   err.Error(),
			Retryable: false,
		}
	}
	r := FailureReason{
		Category:  te.Category.String(),
		Message:   te.Error(),
		Retryable: te.Retryable(),
	}
	switch te.Category {
	case CategoryStorage:
		r.Remedy = "free disk space or choose another destination"
	case CategoryPermission:
		r.Remedy = "grant write permission on the destination directory"
	case CategoryCorruption:
		r.Remedy = "remove the partial file and download again"
	}
	return r
}
