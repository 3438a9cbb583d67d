package api

import (
	"context"
	"errors"
	"net/url"

	"github.com/creachadair/jrpc2"

	"github.com/archfetch/archfetch/common"
	"github.com/archfetch/archfetch/pkg/fetchlib"
)

func parsePriority(s string) (fetchlib.Priority, error) {
	switch s {
	case "", "normal":
		return fetchlib.PriorityNormal, nil
	case "low":
		return fetchlib.PriorityLow, nil
	case "high":
		return fetchlib.PriorityHigh, nil
	default:
		return 0, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid priority: " + s}
	}
}

func networkRequirement(unmeteredOnly bool) fetchlib.NetworkRequirement {
	if unmeteredOnly {
		return fetchlib.NetworkUnmeteredOnly
	}
	return fetchlib.NetworkAny
}

// taskEnqueue creates a new download task from a URL.
func (a *Api) taskEnqueue(_ context.Context, p *common.EnqueueParams) (*common.EnqueueResult, error) {
	if p.URL == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: url"}
	}
	if p.Destination == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: destination"}
	}
	if _, err := url.Parse(p.URL); err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid url: " + err.Error()}
	}
	priority, err := parsePriority(p.Priority)
	if err != nil {
		return nil, err
	}
	t, err := a.sched.Enqueue(p.URL, p.Destination, &fetchlib.EnqueueOpts{
		ArchiveID:          p.ArchiveID,
		Headers:            p.Headers,
		Checksum:           p.Checksum,
		Priority:           priority,
		NetworkRequirement: networkRequirement(p.UnmeteredOnly),
		NotBefore:          p.NotBefore,
	})
	if err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}
	return &common.EnqueueResult{ID: t.ID}, nil
}

// taskEnqueueArchive verifies an identifier, resolves its file set via
// the metadata cache (refreshing when stale or missing), and enqueues
// one task per file.
func (a *Api) taskEnqueueArchive(ctx context.Context, p *common.EnqueueArchiveParams) (*common.EnqueueArchiveResult, error) {
	if p.Identifier == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: identifier"}
	}
	if p.Dir == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: dir"}
	}
	priority, err := parsePriority(p.Priority)
	if err != nil {
		return nil, err
	}

	canonical, found, err := a.identCache.Verify(ctx, p.Identifier)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeUpstreamFailed, Message: "verify identifier: " + err.Error()}
	}
	if !found {
		return nil, &jrpc2.Error{Code: codeCacheMiss, Message: "no such archive: " + p.Identifier}
	}

	entry, err := a.metaCache.Get(canonical)
	if errors.Is(err, fetchlib.ErrCacheMiss) || (err == nil && a.metaCache.IsStale(entry, a.metaMaxAge)) {
		if rerr := a.metaCache.Refresh(ctx, canonical); rerr != nil {
			// A stale description still beats none.
			if entry == nil {
				return nil, &jrpc2.Error{Code: codeUpstreamFailed, Message: "fetch metadata: " + rerr.Error()}
			}
			a.l.Warning("using stale metadata for %s: %s", canonical, rerr.Error())
		} else {
			entry, err = a.metaCache.Get(canonical)
		}
	}
	if err != nil && entry == nil {
		return nil, &jrpc2.Error{Code: codeUpstreamFailed, Message: err.Error()}
	}
	desc, err := entry.Description()
	if err != nil {
		return nil, &jrpc2.Error{Code: codeUpstreamFailed, Message: "decode metadata: " + err.Error()}
	}

	tasks, err := a.sched.EnqueueArchive(desc, p.Dir, &fetchlib.EnqueueOpts{
		Priority:           priority,
		NetworkRequirement: networkRequirement(p.UnmeteredOnly),
	})
	if err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return &common.EnqueueArchiveResult{Identifier: canonical, IDs: ids}, nil
}

// taskList returns tasks, optionally filtered by status and archive.
func (a *Api) taskList(_ context.Context, p *common.ListParams) (*common.ListResult, error) {
	filter := &fetchlib.TaskFilter{ArchiveID: p.ArchiveID}
	switch p.Status {
	case "", "all":
	case "queued", "downloading", "paused", "completed", "error":
		filter.Statuses = []fetchlib.Status{fetchlib.Status(p.Status)}
	default:
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid status: " + p.Status}
	}
	tasks := a.sched.List(filter)
	items := make([]*common.ListItem, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, &common.ListItem{
			ID:           t.ID,
			ArchiveID:    t.ArchiveID,
			URL:          t.URL,
			Destination:  t.Destination,
			Status:       string(t.Status),
			TotalLength:  t.TotalBytes,
			PartialBytes: t.PartialBytes,
			Percentage:   t.GetPercentage(),
			RetryCount:   t.RetryCount,
			NotBefore:    t.NotBefore,
			Reason:       t.Reason,
		})
	}
	return &common.ListResult{Tasks: items}, nil
}

// taskPause stops an active task, keeping its partial data.
func (a *Api) taskPause(_ context.Context, p *common.IDParam) (*common.EmptyResult, error) {
	if err := a.sched.Pause(p.ID); err != nil {
		return nil, taskError(err)
	}
	return &common.EmptyResult{}, nil
}

// taskResume re-queues a paused or errored task.
func (a *Api) taskResume(_ context.Context, p *common.IDParam) (*common.EmptyResult, error) {
	if err := a.sched.Resume(p.ID); err != nil {
		return nil, taskError(err)
	}
	return &common.EmptyResult{}, nil
}

// taskCancel aborts a task and discards its partial data.
func (a *Api) taskCancel(_ context.Context, p *common.IDParam) (*common.EmptyResult, error) {
	if err := a.sched.Cancel(p.ID); err != nil {
		return nil, taskError(err)
	}
	return &common.EmptyResult{}, nil
}

func taskError(err error) error {
	switch {
	case errors.Is(err, fetchlib.ErrTaskNotFound):
		return &jrpc2.Error{Code: codeTaskNotFound, Message: "task not found"}
	case errors.Is(err, fetchlib.ErrTaskActive):
		return &jrpc2.Error{Code: codeTaskNotActive, Message: err.Error()}
	default:
		return &jrpc2.Error{Code: codeTaskNotActive, Message: err.Error()}
	}
}
