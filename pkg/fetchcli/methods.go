package fetchcli

import (
	"time"

	"github.com/archfetch/archfetch/common"
	"github.com/archfetch/archfetch/pkg/fetchlib"
)

// GetVersion reports the daemon build.
func (c *Client) GetVersion() (*common.VersionResult, error) {
	return invokeAs[common.VersionResult](c, common.METHOD_SYSTEM_GET_VERSION, nil)
}

// EnqueueOpts are the optional attributes of a direct URL enqueue.
type EnqueueOpts struct {
	ArchiveID     string
	Headers       fetchlib.Headers
	Checksum      string
	Priority      string
	UnmeteredOnly bool
	NotBefore     time.Time
}

// Enqueue schedules a single file download.
func (c *Client) Enqueue(url, destination string, opts *EnqueueOpts) (*common.EnqueueResult, error) {
	if opts == nil {
		opts = &EnqueueOpts{}
	}
	return invokeAs[common.EnqueueResult](c, common.METHOD_TASK_ENQUEUE, &common.EnqueueParams{
		URL:           url,
		Destination:   destination,
		ArchiveID:     opts.ArchiveID,
		Headers:       opts.Headers,
		Checksum:      opts.Checksum,
		Priority:      opts.Priority,
		UnmeteredOnly: opts.UnmeteredOnly,
		NotBefore:     opts.NotBefore,
	})
}

// EnqueueArchive schedules every file of the named archive into dir.
func (c *Client) EnqueueArchive(identifier, dir, priority string, unmeteredOnly bool) (*common.EnqueueArchiveResult, error) {
	return invokeAs[common.EnqueueArchiveResult](c, common.METHOD_TASK_ENQUEUE_ARCHIVE, &common.EnqueueArchiveParams{
		Identifier:    identifier,
		Dir:           dir,
		Priority:      priority,
		UnmeteredOnly: unmeteredOnly,
	})
}

// List returns tasks, optionally filtered by status and archive.
func (c *Client) List(status, archiveID string) (*common.ListResult, error) {
	return invokeAs[common.ListResult](c, common.METHOD_TASK_LIST, &common.ListParams{
		Status:    status,
		ArchiveID: archiveID,
	})
}

// Pause stops an active task, keeping its partial data.
func (c *Client) Pause(id string) error {
	_, err := invokeAs[common.EmptyResult](c, common.METHOD_TASK_PAUSE, &common.IDParam{ID: id})
	return err
}

// Resume re-queues a paused or errored task.
func (c *Client) Resume(id string) error {
	_, err := invokeAs[common.EmptyResult](c, common.METHOD_TASK_RESUME, &common.IDParam{ID: id})
	return err
}

// Cancel aborts a task and discards its partial data.
func (c *Client) Cancel(id string) error {
	_, err := invokeAs[common.EmptyResult](c, common.METHOD_TASK_CANCEL, &common.IDParam{ID: id})
	return err
}

// CacheStats reports archive cache counters.
func (c *Client) CacheStats() (*common.CacheStatsResult, error) {
	return invokeAs[common.CacheStatsResult](c, common.METHOD_CACHE_STATS, nil)
}

// CachePurge evicts unpinned archive entries older than maxAgeHours.
// Zero uses the daemon default.
func (c *Client) CachePurge(maxAgeHours int) (*common.PurgeResult, error) {
	return invokeAs[common.PurgeResult](c, common.METHOD_CACHE_PURGE, &common.PurgeParams{
		MaxAgeHours: maxAgeHours,
	})
}

// TogglePin flips the purge protection of a cached archive.
func (c *Client) TogglePin(identifier string) (*common.PinResult, error) {
	return invokeAs[common.PinResult](c, common.METHOD_CACHE_TOGGLE_PIN, &common.PinParams{
		Identifier: identifier,
	})
}

// Verify resolves an identifier to its canonical archive name.
func (c *Client) Verify(identifier string) (*common.VerifyResult, error) {
	return invokeAs[common.VerifyResult](c, common.METHOD_IDENTIFIER_VERIFY, &common.VerifyParams{
		Identifier: identifier,
	})
}

// IdentifierMetrics reports verification cache hit counters.
func (c *Client) IdentifierMetrics() (*common.MetricsResult, error) {
	return invokeAs[common.MetricsResult](c, common.METHOD_IDENTIFIER_METRICS, nil)
}

// LimiterStatus reports the request limiter snapshot.
func (c *Client) LimiterStatus() (*common.LimiterStatusResult, error) {
	return invokeAs[common.LimiterStatusResult](c, common.METHOD_LIMITER_STATUS, nil)
}

// BandwidthUsage reports the throttle manager snapshot.
func (c *Client) BandwidthUsage() (*common.BandwidthUsageResult, error) {
	return invokeAs[common.BandwidthUsageResult](c, common.METHOD_BANDWIDTH_USAGE, nil)
}

// SetBandwidthBudget changes the global budget; accepts suffixed forms
// like "500k". Empty or "0" means unlimited.
func (c *Client) SetBandwidthBudget(budget string) (*common.BandwidthUsageResult, error) {
	return invokeAs[common.BandwidthUsageResult](c, common.METHOD_BANDWIDTH_SET_BUDGET, &common.SetBudgetParams{
		Budget: budget,
	})
}
