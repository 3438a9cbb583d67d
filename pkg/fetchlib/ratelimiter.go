package fetchlib

import (
	"context"
	"sync"
	"time"
)

const DEF_MAX_CONCURRENT = 3

// RateLimiter bounds the number of concurrent outbound requests and
// serializes excess demand into a FIFO wait queue. Server-driven
// cool-downs (Retry-After) block new acquisitions until they expire;
// in-flight work is unaffected.
//
// Queue order is strict FIFO regardless of download priority. Priority
// decides which task asks for a slot, upstream in the scheduler; the
// limiter never reorders its queue.
type RateLimiter struct {
	mu            sync.Mutex
	maxConcurrent int
	active        int
	waiters       []*slotWaiter
	// retryAfterExpiry is the end of the current server cool-down.
	// Zero when no cool-down is active.
	retryAfterExpiry time.Time
	cooldownTimer    *time.Timer
	totalAcquired    int64
	totalTimeouts    int64
}

// slotWaiter is one queued Acquire call. ready is buffered so a grant
// never blocks the releasing goroutine.
type slotWaiter struct {
	ready     chan *SlotToken
	priority  Priority
	cancelled bool
	enqueued  time.Time
}

// SlotToken is the release handle returned by Acquire. Release is
// idempotent; only the first call frees the slot.
type SlotToken struct {
	rl   *RateLimiter
	once sync.Once
}

// Release frees the slot, unblocking the oldest FIFO-queued waiter.
func (t *SlotToken) Release() {
	t.once.Do(func() {
		t.rl.mu.Lock()
		defer t.rl.mu.Unlock()
		t.rl.active--
		t.rl.grantLocked()
	})
}

// NewRateLimiter creates a limiter with the given concurrency cap.
// A non-positive cap falls back to the default.
func NewRateLimiter(maxConcurrent int) *RateLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DEF_MAX_CONCURRENT
	}
	return &RateLimiter{maxConcurrent: maxConcurrent}
}

// coolingDownLocked reports whether a server cool-down is in effect.
func (rl *RateLimiter) coolingDownLocked(now time.Time) bool {
	return now.Before(rl.retryAfterExpiry)
}

// grantLocked hands slots to queued waiters, oldest first, while
// capacity remains and no cool-down is in effect.
func (rl *RateLimiter) grantLocked() {
	now := time.Now()
	for rl.active < rl.maxConcurrent && len(rl.waiters) > 0 {
		if rl.coolingDownLocked(now) {
			return
		}
		w := rl.waiters[0]
		rl.waiters = rl.waiters[1:]
		if w.cancelled {
			continue
		}
		rl.active++
		rl.totalAcquired++
		w.ready <- &SlotToken{rl: rl}
	}
}

// Acquire blocks until a slot is free (and any server cool-down has
// expired) or ctx is done. Waiters are served strictly FIFO. A context
// deadline expiry returns ErrAcquireTimeout; caller cancellation
// returns ctx.Err(). The priority is recorded for observability only.
func (rl *RateLimiter) Acquire(ctx context.Context, priority Priority) (*SlotToken, error) {
	rl.mu.Lock()
	now := time.Now()
	if rl.active < rl.maxConcurrent && len(rl.waiters) == 0 && !rl.coolingDownLocked(now) {
		rl.active++
		rl.totalAcquired++
		rl.mu.Unlock()
		return &SlotToken{rl: rl}, nil
	}
	w := &slotWaiter{
		ready:    make(chan *SlotToken, 1),
		priority: priority,
		enqueued: now,
	}
	rl.waiters = append(rl.waiters, w)
	// Flush any cancelled waiters at the head of the queue; this may
	// grant w immediately when capacity is actually free.
	rl.grantLocked()
	rl.mu.Unlock()

	select {
	case tok := <-w.ready:
		return tok, nil
	case <-ctx.Done():
		rl.mu.Lock()
		w.cancelled = true
		rl.mu.Unlock()
		// The grant may have raced the cancellation; if it did, the
		// slot must go back.
		select {
		case tok := <-w.ready:
			tok.Release()
		default:
		}
		if ctx.Err() == context.DeadlineExceeded {
			rl.mu.Lock()
			rl.totalTimeouts++
			rl.mu.Unlock()
			return nil, ErrAcquireTimeout
		}
		return nil, ctx.Err()
	}
}

// TryAcquire grants a slot only if one is immediately available.
// It returns ErrRateLimited during a server cool-down and
// ErrNoFreeSlots when the limiter is saturated or has waiters.
func (rl *RateLimiter) TryAcquire() (*SlotToken, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.coolingDownLocked(time.Now()) {
		return nil, ErrRateLimited
	}
	if rl.active >= rl.maxConcurrent || len(rl.waiters) > 0 {
		return nil, ErrNoFreeSlots
	}
	rl.active++
	rl.totalAcquired++
	return &SlotToken{rl: rl}, nil
}

// ReportServerDelay records a Retry-After value of the given number of
// seconds. The most restrictive (latest-expiring) value seen wins.
// Until it expires, Acquire queues new callers and TryAcquire reports
// ErrRateLimited; slots already held are unaffected.
func (rl *RateLimiter) ReportServerDelay(seconds int) {
	if seconds <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	expiry := time.Now().Add(time.Duration(seconds) * time.Second)
	if !expiry.After(rl.retryAfterExpiry) {
		return
	}
	rl.retryAfterExpiry = expiry
	if rl.cooldownTimer != nil {
		rl.cooldownTimer.Stop()
	}
	// Wake queued waiters once the cool-down lapses.
	rl.cooldownTimer = time.AfterFunc(time.Until(expiry), func() {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		rl.grantLocked()
	})
}

// RateLimitStatus is a read-only snapshot of the limiter, computed on
// demand for reporting. Never persisted.
type RateLimitStatus struct {
	MaxConcurrent     int           `json:"max_concurrent"`
	Active            int           `json:"active"`
	Waiting           int           `json:"waiting"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
	TotalAcquired     int64         `json:"total_acquired"`
	TotalTimeouts     int64         `json:"total_timeouts"`
}

// Status returns the current limiter snapshot.
func (rl *RateLimiter) Status() RateLimitStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	var waiting int
	for _, w := range rl.waiters {
		if !w.cancelled {
			waiting++
		}
	}
	var remaining time.Duration
	if now := time.Now(); now.Before(rl.retryAfterExpiry) {
		remaining = rl.retryAfterExpiry.Sub(now)
	}
	return RateLimitStatus{
		MaxConcurrent:     rl.maxConcurrent,
		Active:            rl.active,
		Waiting:           waiting,
		CooldownRemaining: remaining,
		TotalAcquired:     rl.totalAcquired,
		TotalTimeouts:     rl.totalTimeouts,
	}
}
