package api

import (
	"context"

	"github.com/creachadair/jrpc2"

	"github.com/archfetch/archfetch/common"
)

// identifierVerify resolves an identifier through the verification
// cascade and reports the canonical form.
func (a *Api) identifierVerify(ctx context.Context, p *common.VerifyParams) (*common.VerifyResult, error) {
	if p.Identifier == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: identifier"}
	}
	canonical, found, err := a.identCache.Verify(ctx, p.Identifier)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeUpstreamFailed, Message: err.Error()}
	}
	if !found {
		return nil, &jrpc2.Error{Code: codeCacheMiss, Message: "no such archive: " + p.Identifier}
	}
	res := &common.VerifyResult{Identifier: p.Identifier, Canonical: canonical}
	// The strategy the cascade settled on is recorded alongside the
	// cached mapping.
	if _, strategy, ok, serr := a.store.GetIdentifier(p.Identifier); serr == nil && ok {
		res.Strategy = strategy
	}
	return res, nil
}

// identifierMetrics reports the verification cache hit counters.
func (a *Api) identifierMetrics(_ context.Context) (*common.MetricsResult, error) {
	m := a.identCache.Metrics()
	return &common.MetricsResult{
		StandardHits:       m.StandardHits,
		StrictHits:         m.StrictHits,
		AlternativeHits:    m.AlternativeHits,
		CacheMisses:        m.CacheMisses,
		APICallsMade:       m.APICallsMade,
		APICallsSaved:      m.APICallsSaved,
		TotalVerifications: m.TotalVerifications,
		LastReset:          m.LastReset,
	}, nil
}
