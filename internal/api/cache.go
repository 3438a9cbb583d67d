package api

import (
	"context"
	"errors"
	"time"

	"github.com/creachadair/jrpc2"

	"github.com/archfetch/archfetch/common"
	"github.com/archfetch/archfetch/pkg/fetchlib"
)

// cacheStats returns archive cache counters.
func (a *Api) cacheStats(_ context.Context) (*common.CacheStatsResult, error) {
	st, err := a.metaCache.Stats()
	if err != nil {
		return nil, &jrpc2.Error{Code: codeUpstreamFailed, Message: err.Error()}
	}
	return &common.CacheStatsResult{
		Entries:    st.Entries,
		Pinned:     st.Pinned,
		TotalFiles: st.TotalFiles,
		TotalSize:  st.TotalSize,
	}, nil
}

// cachePurge evicts unpinned archive entries not accessed within the
// given horizon.
func (a *Api) cachePurge(_ context.Context, p *common.PurgeParams) (*common.PurgeResult, error) {
	maxAge := a.metaMaxAge
	if p.MaxAgeHours > 0 {
		maxAge = time.Duration(p.MaxAgeHours) * time.Hour
	}
	n, err := a.metaCache.PurgeStale(maxAge)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeUpstreamFailed, Message: err.Error()}
	}
	a.l.Info("cache purge removed %d entries", n)
	return &common.PurgeResult{Purged: n}, nil
}

// cacheTogglePin flips the pin flag of a cached archive. Pinned
// entries survive purge sweeps.
func (a *Api) cacheTogglePin(_ context.Context, p *common.PinParams) (*common.PinResult, error) {
	if p.Identifier == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: identifier"}
	}
	pinned, err := a.metaCache.TogglePin(p.Identifier)
	if err != nil {
		if errors.Is(err, fetchlib.ErrCacheMiss) {
			return nil, &jrpc2.Error{Code: codeCacheMiss, Message: "archive not cached: " + p.Identifier}
		}
		return nil, &jrpc2.Error{Code: codeUpstreamFailed, Message: err.Error()}
	}
	return &common.PinResult{Identifier: p.Identifier, Pinned: pinned}, nil
}
