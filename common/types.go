package common

import (
	"time"

	"github.com/archfetch/archfetch/pkg/fetchlib"
)

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// EnqueueParams is the input for task.enqueue.
type EnqueueParams struct {
	URL           string           `json:"url"`
	Destination   string           `json:"destination"`
	ArchiveID     string           `json:"archiveId,omitempty"`
	Headers       fetchlib.Headers `json:"headers,omitempty"`
	Checksum      string           `json:"checksum,omitempty"`
	Priority      string           `json:"priority,omitempty"` // "low", "normal", "high"
	UnmeteredOnly bool             `json:"unmeteredOnly,omitempty"`
	NotBefore     time.Time        `json:"notBefore,omitzero"`
}

// EnqueueResult is the response for task.enqueue.
type EnqueueResult struct {
	ID string `json:"id"`
}

// EnqueueArchiveParams is the input for task.enqueueArchive. The
// identifier is verified through the identifier cache and the file set
// comes from the metadata cache, refreshed when stale.
type EnqueueArchiveParams struct {
	Identifier    string `json:"identifier"`
	Dir           string `json:"dir"`
	Priority      string `json:"priority,omitempty"`
	UnmeteredOnly bool   `json:"unmeteredOnly,omitempty"`
}

// EnqueueArchiveResult is the response for task.enqueueArchive.
type EnqueueArchiveResult struct {
	Identifier string   `json:"identifier"`
	IDs        []string `json:"ids"`
}

// IDParam is a common input with just a task ID.
type IDParam struct {
	ID string `json:"id"`
}

// ListParams is the input for task.list.
type ListParams struct {
	// Status filters by task state; empty and "all" return everything.
	Status    string `json:"status,omitempty"`
	ArchiveID string `json:"archiveId,omitempty"`
}

// ListItem is a single entry in the task.list response.
type ListItem struct {
	ID           string                  `json:"id"`
	ArchiveID    string                  `json:"archiveId,omitempty"`
	URL          string                  `json:"url"`
	Destination  string                  `json:"destination"`
	Status       string                  `json:"status"`
	TotalLength  int64                   `json:"totalLength"`
	PartialBytes int64                   `json:"partialBytes"`
	Percentage   int64                   `json:"percentage"`
	RetryCount   int                     `json:"retryCount,omitempty"`
	NotBefore    time.Time               `json:"notBefore,omitzero"`
	Reason       *fetchlib.FailureReason `json:"reason,omitempty"`
}

// ListResult is the response for task.list.
type ListResult struct {
	Tasks []*ListItem `json:"tasks"`
}

// CacheStatsResult is the response for cache.stats.
type CacheStatsResult struct {
	Entries    int   `json:"entries"`
	Pinned     int   `json:"pinned"`
	TotalFiles int64 `json:"totalFiles"`
	TotalSize  int64 `json:"totalSize"`
}

// PurgeParams is the input for cache.purge.
type PurgeParams struct {
	// MaxAgeHours is the staleness horizon; entries unused for longer
	// are purged unless pinned. Zero uses the daemon default.
	MaxAgeHours int `json:"maxAgeHours,omitempty"`
}

// PurgeResult is the response for cache.purge.
type PurgeResult struct {
	Purged int `json:"purged"`
}

// PinParams is the input for cache.togglePin.
type PinParams struct {
	Identifier string `json:"identifier"`
}

// PinResult is the response for cache.togglePin.
type PinResult struct {
	Identifier string `json:"identifier"`
	Pinned     bool   `json:"pinned"`
}

// VerifyParams is the input for identifier.verify.
type VerifyParams struct {
	Identifier string `json:"identifier"`
}

// VerifyResult is the response for identifier.verify.
type VerifyResult struct {
	Identifier string `json:"identifier"`
	Canonical  string `json:"canonical"`
	Strategy   string `json:"strategy,omitempty"`
}

// MetricsResult is the response for identifier.metrics.
type MetricsResult struct {
	StandardHits       int64     `json:"standardHits"`
	StrictHits         int64     `json:"strictHits"`
	AlternativeHits    int64     `json:"alternativeHits"`
	CacheMisses        int64     `json:"cacheMisses"`
	APICallsMade       int64     `json:"apiCallsMade"`
	APICallsSaved      int64     `json:"apiCallsSaved"`
	TotalVerifications int64     `json:"totalVerifications"`
	LastReset          time.Time `json:"lastReset"`
}

// LimiterStatusResult is the response for limiter.status.
type LimiterStatusResult struct {
	MaxConcurrent   int   `json:"maxConcurrent"`
	Active          int   `json:"active"`
	Waiting         int   `json:"waiting"`
	CooldownSeconds int64 `json:"cooldownSeconds"`
	TotalAcquired   int64 `json:"totalAcquired"`
	TotalTimeouts   int64 `json:"totalTimeouts"`
}

// BandwidthUsageResult is the response for bandwidth.usage.
type BandwidthUsageResult struct {
	TotalBudget     int64            `json:"totalBudget"`
	Unlimited       bool             `json:"unlimited"`
	ActiveThrottles int              `json:"activeThrottles"`
	PerThrottleRate int64            `json:"perThrottleRate"`
	RateByID        map[string]int64 `json:"rateById,omitempty"`
	ConsumedByID    map[string]int64 `json:"consumedById,omitempty"`
}

// SetBudgetParams is the input for bandwidth.setBudget.
type SetBudgetParams struct {
	// Budget is in bytes per second; 0 means unlimited. Accepts the
	// same suffixed forms as the CLI ("500k", "2m").
	Budget string `json:"budget"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}
