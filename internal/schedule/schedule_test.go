package schedule

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestScheduler_AddAndFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	fired := make(map[string]bool)
	onTrigger := func(jobID string) {
		mu.Lock()
		fired[jobID] = true
		mu.Unlock()
	}

	s := New(ctx, onTrigger)

	// Schedule an event 100ms from now
	s.Add(Event{
		JobID:     "job1",
		TriggerAt: time.Now().Add(100 * time.Millisecond),
	})

	// Wait enough time for the event to fire
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if !fired["job1"] {
		t.Fatal("expected job1 to fire")
	}
}

func TestScheduler_CancelBeforeFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	fired := make(map[string]bool)
	onTrigger := func(jobID string) {
		mu.Lock()
		fired[jobID] = true
		mu.Unlock()
	}

	s := New(ctx, onTrigger)

	// Schedule an event 2s from now (plenty of margin)
	s.Add(Event{
		JobID:     "job2",
		TriggerAt: time.Now().Add(2 * time.Second),
	})

	// Give the goroutine time to process the add
	time.Sleep(100 * time.Millisecond)

	// Cancel it before it fires
	s.Remove("job2")

	// Give the goroutine time to process the remove
	time.Sleep(100 * time.Millisecond)

	// Wait past the trigger time
	time.Sleep(2 * time.Second)

	mu.Lock()
	defer mu.Unlock()
	if fired["job2"] {
		t.Fatal("expected job2 NOT to fire after cancel")
	}
}

func TestScheduler_ShutdownViaContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	fired := make(map[string]bool)
	onTrigger := func(jobID string) {
		mu.Lock()
		fired[jobID] = true
		mu.Unlock()
	}

	s := New(ctx, onTrigger)

	// Schedule an event 500ms from now
	s.Add(Event{
		JobID:     "job3",
		TriggerAt: time.Now().Add(500 * time.Millisecond),
	})

	// Cancel context immediately
	cancel()

	// Wait past the trigger time
	time.Sleep(700 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired["job3"] {
		t.Fatal("expected job3 NOT to fire after context cancel")
	}
	_ = s // ensure scheduler is referenced
}

func TestScheduler_MultipleEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	fired := []string{}
	onTrigger := func(jobID string) {
		mu.Lock()
		fired = append(fired, jobID)
		mu.Unlock()
	}

	s := New(ctx, onTrigger)

	// Schedule two events at different times
	s.Add(Event{
		JobID:     "first",
		TriggerAt: time.Now().Add(100 * time.Millisecond),
	})
	s.Add(Event{
		JobID:     "second",
		TriggerAt: time.Now().Add(200 * time.Millisecond),
	})

	// Wait for both to fire
	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(fired))
	}
	// First should fire before second
	if fired[0] != "first" {
		t.Errorf("expected first to fire first, got %s", fired[0])
	}
	if fired[1] != "second" {
		t.Errorf("expected second to fire second, got %s", fired[1])
	}
}

func TestScheduler_RecurringEventRefires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var count int
	onTrigger := func(jobID string) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	s := New(ctx, onTrigger)

	// An every-second cron event must fire more than once.
	s.Add(Event{
		JobID:     "recurring",
		TriggerAt: time.Now().Add(100 * time.Millisecond),
		CronExpr:  "* * * * * *",
	})

	time.Sleep(2500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count < 2 {
		t.Fatalf("expected recurring event to fire at least twice, got %d", count)
	}
}

func TestScheduler_RemoveNonexistent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(ctx, func(jobID string) {})

	// Removing a nonexistent id should not panic
	s.Remove("nonexistent")
}

func TestNextCronOccurrence(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	next, err := NextCronOccurrence("0 */6 * * *", start)
	if err != nil {
		t.Fatalf("NextCronOccurrence failed: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next occurrence = %v, want %v", next, want)
	}

	if _, err := NextCronOccurrence("not a cron", start); err == nil {
		t.Error("expected an error for a malformed expression")
	}
}

func TestValidCron(t *testing.T) {
	now := time.Now()
	if !ValidCron("0 */6 * * *", now) {
		t.Error("expected a standard expression to validate")
	}
	if ValidCron("garbage", now) {
		t.Error("expected garbage to be rejected")
	}
	// 30th of February never arrives.
	if ValidCron("0 0 30 2 *", now) {
		t.Error("expected a never-firing expression to be rejected")
	}
}
