// Package api implements the daemon's JSON-RPC 2.0 method surface over
// the scheduler, caches, and limiters.
package api

import (
	"context"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"

	"github.com/archfetch/archfetch/common"
	"github.com/archfetch/archfetch/pkg/fetchlib"
	"github.com/archfetch/archfetch/pkg/logger"
)

// Custom JSON-RPC error codes for fetch operations.
const (
	codeTaskNotFound   = jrpc2.Code(-32001)
	codeTaskNotActive  = jrpc2.Code(-32002)
	codeCacheMiss      = jrpc2.Code(-32003)
	codeUpstreamFailed = jrpc2.Code(-32004)
	codeInvalidParams  = jrpc2.Code(-32602)
)

// BuildInfo identifies the daemon build in system.getVersion.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildType string
}

// Api exposes the daemon components as RPC methods.
type Api struct {
	l          logger.Logger
	sched      *fetchlib.Scheduler
	metaCache  *fetchlib.MetadataCache
	identCache *fetchlib.IdentifierVerificationCache
	limiter    *fetchlib.RateLimiter
	bandwidth  *fetchlib.BandwidthManager
	store      *fetchlib.Store
	// metaMaxAge is the default staleness horizon for refresh and purge.
	metaMaxAge time.Duration
	build      BuildInfo
}

// NewApi wires the daemon components into an RPC method set.
func NewApi(l logger.Logger, sched *fetchlib.Scheduler, metaCache *fetchlib.MetadataCache, identCache *fetchlib.IdentifierVerificationCache, limiter *fetchlib.RateLimiter, bandwidth *fetchlib.BandwidthManager, store *fetchlib.Store, metaMaxAge time.Duration, build BuildInfo) *Api {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Api{
		l:          l,
		sched:      sched,
		metaCache:  metaCache,
		identCache: identCache,
		limiter:    limiter,
		bandwidth:  bandwidth,
		store:      store,
		metaMaxAge: metaMaxAge,
		build:      build,
	}
}

// Methods returns the handler map served by the daemon bridge.
func (a *Api) Methods() handler.Map {
	return handler.Map{
		"system.getVersion": handler.New(a.systemGetVersion),

		"task.enqueue":        handler.New(a.taskEnqueue),
		"task.enqueueArchive": handler.New(a.taskEnqueueArchive),
		"task.list":           handler.New(a.taskList),
		"task.pause":          handler.New(a.taskPause),
		"task.resume":         handler.New(a.taskResume),
		"task.cancel":         handler.New(a.taskCancel),

		"cache.stats":     handler.New(a.cacheStats),
		"cache.purge":     handler.New(a.cachePurge),
		"cache.togglePin": handler.New(a.cacheTogglePin),

		"identifier.verify":  handler.New(a.identifierVerify),
		"identifier.metrics": handler.New(a.identifierMetrics),

		"limiter.status":      handler.New(a.limiterStatus),
		"bandwidth.usage":     handler.New(a.bandwidthUsage),
		"bandwidth.setBudget": handler.New(a.bandwidthSetBudget),
	}
}

func (a *Api) systemGetVersion(_ context.Context) (*common.VersionResult, error) {
	return &common.VersionResult{
		Version:   a.build.Version,
		Commit:    a.build.Commit,
		BuildType: a.build.BuildType,
	}, nil
}
