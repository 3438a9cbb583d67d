// Package fetchlib provides the core structures and services for
// fetching large multi-file remote archives: a resumable download
// scheduler, request rate limiting, bandwidth budgeting, and caches
// for archive metadata and identifier verification.
package fetchlib

import (
	"time"
)

// Status is the lifecycle state of a download task.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// Terminal reports whether the status admits no further transfer work
// without an explicit resume or retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Priority represents the priority level for queued downloads.
type Priority int

const (
	// PriorityLow is the lowest priority for downloads.
	PriorityLow Priority = iota
	// PriorityNormal is the default priority for downloads.
	PriorityNormal
	// PriorityHigh is the highest priority for downloads.
	PriorityHigh
)

// String returns the priority name used in listings.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// NetworkRequirement restricts which network classes a task may use.
type NetworkRequirement string

const (
	// NetworkAny allows the task on any connected network.
	NetworkAny NetworkRequirement = "any"
	// NetworkUnmeteredOnly holds the task until an unmetered network
	// is available.
	NetworkUnmeteredOnly NetworkRequirement = "unmetered-only"
)

// NetworkClass describes the current network as reported by the
// caller-supplied collaborator.
type NetworkClass int

const (
	// NetworkOffline means no transfer can proceed.
	NetworkOffline NetworkClass = iota
	// NetworkMetered is a connected but metered network.
	NetworkMetered
	// NetworkUnmetered is a connected unmetered network.
	NetworkUnmetered
)

// Satisfies reports whether the network class meets the requirement.
func (c NetworkClass) Satisfies(req NetworkRequirement) bool {
	switch c {
	case NetworkOffline:
		return false
	case NetworkMetered:
		return req != NetworkUnmeteredOnly
	default:
		return true
	}
}

// Task represents one file's download unit of work within an archive,
// with its resume and retry state. Tasks are persisted on every state
// transition so a crash mid-transfer leaves PartialBytes and Status
// consistent for a later resume.
type Task struct {
	// ID is the stable unique identifier of the task.
	ID string `json:"id"`
	// ArchiveID identifies the archive this file belongs to.
	ArchiveID string `json:"archive_id"`
	// URL is the source of the file.
	URL string `json:"url"`
	// Destination is the path the file is written to.
	Destination string `json:"destination"`
	// Headers used for the transfer requests.
	Headers Headers `json:"headers,omitempty"`
	// PartialBytes is the resume cursor: bytes already on disk.
	PartialBytes int64 `json:"partial_bytes"`
	// TotalBytes is the full size of the file. Invariant:
	// PartialBytes <= TotalBytes.
	TotalBytes int64 `json:"total_bytes"`
	// ETag is the validator captured when the transfer started.
	ETag string `json:"etag,omitempty"`
	// LastModified is the fallback validator when the server sends
	// no ETag.
	LastModified string `json:"last_modified,omitempty"`
	// Checksum is the optional expected checksum of the complete
	// file, "algo:hex".
	Checksum string `json:"checksum,omitempty"`
	// Priority orders admission among eligible queued tasks.
	Priority Priority `json:"priority"`
	// NetworkRequirement gates eligibility on the network class.
	NetworkRequirement NetworkRequirement `json:"network_requirement"`
	// NotBefore delays eligibility until the given time. The zero
	// value means eligible immediately. Retry backoff re-enters the
	// queue through this field.
	NotBefore time.Time `json:"not_before,omitzero"`
	// Status is the lifecycle state.
	Status Status `json:"status"`
	// RetryCount is the number of transient failures so far.
	RetryCount int `json:"retry_count"`
	// ErrorMessage is the human-readable reason for the last failure.
	ErrorMessage string `json:"error_message,omitempty"`
	// Reason is the structured failure reason for terminal errors.
	Reason *FailureReason `json:"reason,omitempty"`
	// DateAdded is the enqueue time; it breaks priority ties FIFO.
	DateAdded time.Time `json:"date_added"`
	// Seq is the enqueue sequence number, the authoritative FIFO
	// tie-breaker when two tasks share a DateAdded stamp.
	Seq int64 `json:"seq"`
}

// CanResume reports whether the task holds partial data worth resuming.
func (t *Task) CanResume() bool {
	if t.Status != StatusPaused && t.Status != StatusError {
		return false
	}
	return t.PartialBytes > 0 && t.PartialBytes < t.TotalBytes
}

// Eligible reports whether a queued task may be admitted now on the
// given network class.
func (t *Task) Eligible(now time.Time, net NetworkClass) bool {
	if t.Status != StatusQueued {
		return false
	}
	if !t.NotBefore.IsZero() && now.Before(t.NotBefore) {
		return false
	}
	return net.Satisfies(t.NetworkRequirement)
}

// GetPercentage returns the download progress as a percentage.
func (t *Task) GetPercentage() int64 {
	if t.TotalBytes <= 0 {
		return 0
	}
	return t.PartialBytes * 100 / t.TotalBytes
}

// TaskFilter selects tasks in List calls. Zero value matches all.
type TaskFilter struct {
	// Statuses limits results to the given states when non-empty.
	Statuses []Status `json:"statuses,omitempty"`
	// ArchiveID limits results to one archive when non-empty.
	ArchiveID string `json:"archive_id,omitempty"`
}

// Match reports whether the task passes the filter.
func (f *TaskFilter) Match(t *Task) bool {
	if f == nil {
		return true
	}
	if f.ArchiveID != "" && f.ArchiveID != t.ArchiveID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}
