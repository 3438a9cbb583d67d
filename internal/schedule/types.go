package schedule

import "time"

// Event represents a pending timed job in the scheduler heap.
// It is an in-memory only type — the heap is rebuilt from cached
// archive records on daemon restart.
type Event struct {
	// JobID identifies the job to run when TriggerAt is reached, e.g.
	// a refresh target's archive identifier.
	JobID string
	// TriggerAt is the wall-clock time when this job should fire.
	TriggerAt time.Time
	// CronExpr is the cron expression for recurring jobs.
	// Empty string means one-shot — no re-scheduling after firing.
	CronExpr string
}
