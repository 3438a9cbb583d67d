package fetchlib

import (
	"context"
	"sort"
	"sync"
	"time"
)

// maxConsumeWait bounds a single sleep inside Consume so rate
// reassignments and Resume calls take effect promptly.
const maxConsumeWait = 500 * time.Millisecond

// BandwidthThrottle is a per-transfer token-bucket limiter. Tokens
// refill continuously at the assigned rate and are capped at one
// second's worth (burst ceiling = rate). Throttles are created and
// rated by a BandwidthManager; a rate change only affects the next
// refill cycle.
type BandwidthThrottle struct {
	id string

	mu sync.Mutex
	// unlimited marks the no-op throttle handed out by a manager with
	// a zero total budget. Observably different from any finite rate:
	// Consume never blocks and IsUnlimited reports true.
	unlimited  bool
	rate       int64 // bytes per second
	tokens     float64
	lastRefill time.Time
	paused     bool
	consumed   int64
	removed    bool
}

// refillLocked adds tokens for the time elapsed since the last refill.
// Paused throttles keep their accumulated tokens but gain none.
func (t *BandwidthThrottle) refillLocked(now time.Time) {
	elapsed := now.Sub(t.lastRefill)
	t.lastRefill = now
	if t.paused || t.rate <= 0 {
		return
	}
	t.tokens += float64(t.rate) * elapsed.Seconds()
	if t.tokens > float64(t.rate) {
		t.tokens = float64(t.rate)
	}
}

// IsUnlimited reports whether this throttle never blocks.
func (t *BandwidthThrottle) IsUnlimited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unlimited
}

// Rate returns the currently assigned rate in bytes per second.
func (t *BandwidthThrottle) Rate() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rate
}

// setRate assigns a new refill rate. Accumulated tokens above the new
// burst ceiling are clamped on the next refill, not dropped eagerly.
func (t *BandwidthThrottle) setRate(rate int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refillLocked(time.Now())
	t.rate = rate
}

// Pause suspends token refill without losing accumulated tokens.
func (t *BandwidthThrottle) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refillLocked(time.Now())
	t.paused = true
}

// Resume continues token refill.
func (t *BandwidthThrottle) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Drop the paused interval from the refill clock.
	t.lastRefill = time.Now()
	t.paused = false
}

// Consume blocks until the throttle's allowance covers n bytes, then
// debits it. Requests larger than the burst ceiling are satisfied in
// rate-sized installments. A context deadline expiry returns
// ErrAcquireTimeout; caller cancellation returns ctx.Err().
func (t *BandwidthThrottle) Consume(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	t.mu.Lock()
	if t.removed {
		t.mu.Unlock()
		return ErrThrottleRemoved
	}
	if t.unlimited {
		t.consumed += n
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	remaining := n
	for remaining > 0 {
		t.mu.Lock()
		if t.removed {
			t.mu.Unlock()
			return ErrThrottleRemoved
		}
		if t.unlimited {
			t.consumed += remaining
			t.mu.Unlock()
			return nil
		}
		now := time.Now()
		t.refillLocked(now)
		take := remaining
		if t.rate > 0 && take > t.rate {
			take = t.rate
		}
		if t.tokens >= float64(take) && !t.paused {
			t.tokens -= float64(take)
			t.consumed += take
			remaining -= take
			t.mu.Unlock()
			continue
		}
		wait := maxConsumeWait
		if !t.paused && t.rate > 0 {
			needed := float64(take) - t.tokens
			w := time.Duration(needed / float64(t.rate) * float64(time.Second))
			if w < wait {
				wait = w
			}
			if wait <= 0 {
				wait = time.Millisecond
			}
		}
		t.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			if ctx.Err() == context.DeadlineExceeded {
				return ErrAcquireTimeout
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// markRemoved detaches the throttle from its manager. Subsequent
// Consume calls fail instead of silently running unthrottled.
func (t *BandwidthThrottle) markRemoved() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removed = true
}

// consumedBytes returns the total bytes debited so far.
func (t *BandwidthThrottle) consumedBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumed
}

// BandwidthManager allocates a global byte/sec budget equally across
// the active throttles. A total budget of zero means unlimited: every
// throttle it creates is a no-op that always permits immediately.
type BandwidthManager struct {
	mu          sync.Mutex
	totalBudget int64
	throttles   map[string]*BandwidthThrottle
}

// NewBandwidthManager creates a manager with the given total budget in
// bytes per second. Zero (or negative) means unlimited.
func NewBandwidthManager(totalBudget int64) *BandwidthManager {
	if totalBudget < 0 {
		totalBudget = 0
	}
	return &BandwidthManager{
		totalBudget: totalBudget,
		throttles:   make(map[string]*BandwidthThrottle),
	}
}

// redistributeLocked reassigns every throttle a share of the budget.
// The division remainder goes one byte each to the lexically first
// throttles, so the assigned rates always sum to exactly the budget;
// a budget smaller than the throttle count leaves the tail at zero
// until a sibling finishes. Mid-consumption throttles pick the new
// rate up on their next refill cycle.
func (m *BandwidthManager) redistributeLocked() {
	n := int64(len(m.throttles))
	if n == 0 {
		return
	}
	ids := make([]string, 0, n)
	for id := range m.throttles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var base, extra int64
	if m.totalBudget > 0 {
		base = m.totalBudget / n
		extra = m.totalBudget % n
	}
	for i, id := range ids {
		rate := base
		if int64(i) < extra {
			rate++
		}
		t := m.throttles[id]
		t.mu.Lock()
		t.refillLocked(time.Now())
		t.unlimited = m.totalBudget == 0
		t.rate = rate
		t.mu.Unlock()
	}
}

// CreateThrottle returns a throttle bound to an equal share of the
// manager's budget, recomputing every sibling's share. Creating a
// throttle for an id that already has one replaces the old throttle.
func (m *BandwidthManager) CreateThrottle(downloadID string) *BandwidthThrottle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.throttles[downloadID]; ok {
		old.markRemoved()
	}
	t := &BandwidthThrottle{
		id:         downloadID,
		unlimited:  m.totalBudget == 0,
		lastRefill: time.Now(),
	}
	m.throttles[downloadID] = t
	m.redistributeLocked()
	return t
}

// RemoveThrottle releases the throttle for the given id and
// redistributes its share across the remaining throttles.
func (m *BandwidthManager) RemoveThrottle(downloadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.throttles[downloadID]
	if !ok {
		return
	}
	t.markRemoved()
	delete(m.throttles, downloadID)
	m.redistributeLocked()
}

// SetTotalBudget changes the global budget at runtime and
// redistributes. Zero means unlimited.
func (m *BandwidthManager) SetTotalBudget(totalBudget int64) {
	if totalBudget < 0 {
		totalBudget = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalBudget = totalBudget
	m.redistributeLocked()
}

// BandwidthUsage is a read-only snapshot of the manager, computed on
// demand for reporting. Never persisted. PerThrottleRate is the largest
// rate currently assigned; RateByID carries the exact per-throttle
// rates, which differ by at most one byte.
type BandwidthUsage struct {
	TotalBudget     int64            `json:"total_budget"`
	Unlimited       bool             `json:"unlimited"`
	ActiveThrottles int              `json:"active_throttles"`
	PerThrottleRate int64            `json:"per_throttle_rate"`
	RateByID        map[string]int64 `json:"rate_by_id,omitempty"`
	ConsumedByID    map[string]int64 `json:"consumed_by_id,omitempty"`
}

// Usage returns the current manager snapshot. Rates are read back from
// the throttles themselves, so the snapshot always matches what each
// transfer is actually granted.
func (m *BandwidthManager) Usage() BandwidthUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := BandwidthUsage{
		TotalBudget:     m.totalBudget,
		Unlimited:       m.totalBudget == 0,
		ActiveThrottles: len(m.throttles),
		RateByID:        make(map[string]int64, len(m.throttles)),
		ConsumedByID:    make(map[string]int64, len(m.throttles)),
	}
	for id, t := range m.throttles {
		rate := t.Rate()
		u.RateByID[id] = rate
		if rate > u.PerThrottleRate {
			u.PerThrottleRate = rate
		}
		u.ConsumedByID[id] = t.consumedBytes()
	}
	return u
}
