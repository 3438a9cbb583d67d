package api

import (
	"context"
	"time"

	"github.com/creachadair/jrpc2"

	"github.com/archfetch/archfetch/common"
	"github.com/archfetch/archfetch/pkg/fetchlib"
)

// limiterStatus reports the request limiter snapshot.
func (a *Api) limiterStatus(_ context.Context) (*common.LimiterStatusResult, error) {
	st := a.limiter.Status()
	return &common.LimiterStatusResult{
		MaxConcurrent:   st.MaxConcurrent,
		Active:          st.Active,
		Waiting:         st.Waiting,
		CooldownSeconds: int64(st.CooldownRemaining / time.Second),
		TotalAcquired:   st.TotalAcquired,
		TotalTimeouts:   st.TotalTimeouts,
	}, nil
}

// bandwidthUsage reports the throttle manager snapshot.
func (a *Api) bandwidthUsage(_ context.Context) (*common.BandwidthUsageResult, error) {
	u := a.bandwidth.Usage()
	return &common.BandwidthUsageResult{
		TotalBudget:     u.TotalBudget,
		Unlimited:       u.Unlimited,
		ActiveThrottles: u.ActiveThrottles,
		PerThrottleRate: u.PerThrottleRate,
		RateByID:        u.RateByID,
		ConsumedByID:    u.ConsumedByID,
	}, nil
}

// bandwidthSetBudget changes the global bandwidth budget at runtime.
// Active transfers pick up their new share on the next refill.
func (a *Api) bandwidthSetBudget(_ context.Context, p *common.SetBudgetParams) (*common.BandwidthUsageResult, error) {
	var budget int64
	if p.Budget != "" && p.Budget != "0" {
		var err error
		budget, err = fetchlib.ParseSpeedLimit(p.Budget)
		if err != nil {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid budget: " + err.Error()}
		}
	}
	a.bandwidth.SetTotalBudget(budget)
	a.l.Info("bandwidth budget set to %d B/s", budget)
	return a.bandwidthUsage(context.Background())
}
