package schedule

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
)

const maxSleepCap = 60 * time.Second

// Scheduler manages timed jobs using a min-heap.
// It runs a background goroutine that sleeps until the next event's
// trigger time, then calls the onTrigger callback with the job ID.
type Scheduler struct {
	addChan    chan Event
	removeChan chan string
	ctx        context.Context
}

// New creates and starts a new Scheduler.
// The onTrigger callback is invoked when a scheduled event fires.
// The scheduler goroutine exits when ctx is cancelled.
func New(ctx context.Context, onTrigger func(string)) *Scheduler {
	s := &Scheduler{
		addChan:    make(chan Event, 64),
		removeChan: make(chan string, 64),
		ctx:        ctx,
	}
	go s.run(onTrigger)
	return s
}

// Add enqueues a new schedule event.
func (s *Scheduler) Add(event Event) {
	select {
	case s.addChan <- event:
	case <-s.ctx.Done():
	}
}

// Remove cancels a scheduled event by job ID.
func (s *Scheduler) Remove(jobID string) {
	select {
	case s.removeChan <- jobID:
	case <-s.ctx.Done():
	}
}

// run is the core scheduler goroutine implementing the active-object
// pattern. It maintains a min-heap of events and sleeps with a 60s
// max-sleep-cap. For recurring events (CronExpr != ""), after firing it
// computes the next occurrence and re-adds it to the heap automatically.
func (s *Scheduler) run(onTrigger func(string)) {
	q := newEventQueue()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if q.len() == 0 {
			// No events — block indefinitely on channels
			return nil
		}
		next := q.peek().TriggerAt
		dur := time.Until(next)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			return

		case event := <-s.addChan:
			q.push(event)
			timerCh = resetTimer()

		case id := <-s.removeChan:
			q.removeJob(id)
			timerCh = resetTimer()

		case <-timerCh:
			// Check and fire all events whose time has arrived
			now := time.Now()
			for q.len() > 0 && !q.peek().TriggerAt.After(now) {
				event := q.pop()
				onTrigger(event.JobID)
				if event.CronExpr != "" {
					next, err := NextCronOccurrence(event.CronExpr, time.Now())
					if err == nil {
						q.push(Event{
							JobID:     event.JobID,
							TriggerAt: next,
							CronExpr:  event.CronExpr,
						})
					}
				}
			}
			timerCh = resetTimer()
		}
	}
}

// NextCronOccurrence returns the next time the cron expression fires
// strictly after start.
func NextCronOccurrence(expr string, start time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, start, false)
}

// ValidCron reports whether expr is a parseable cron expression with at
// least one occurrence within a year of now. Rejects expressions that
// would silently never fire.
func ValidCron(expr string, now time.Time) bool {
	if !gronx.New().IsValid(expr) {
		return false
	}
	next, err := gronx.NextTickAfter(expr, now, false)
	if err != nil {
		return false
	}
	return next.Before(now.Add(365 * 24 * time.Hour))
}
