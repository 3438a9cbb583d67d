package schedule

import (
	"testing"
	"time"
)

// TestQueueOrdering verifies events pop in ascending TriggerAt order.
func TestQueueOrdering(t *testing.T) {
	q := newEventQueue()

	q.push(Event{JobID: "job3", TriggerAt: time.Now().Add(3 * time.Hour)})
	q.push(Event{JobID: "job1", TriggerAt: time.Now().Add(1 * time.Hour)})
	q.push(Event{JobID: "job2", TriggerAt: time.Now().Add(2 * time.Hour)})

	for _, want := range []string{"job1", "job2", "job3"} {
		if got := q.pop().JobID; got != want {
			t.Errorf("pop = %s, want %s", got, want)
		}
	}
	if q.len() != 0 {
		t.Errorf("queue not drained, len %d", q.len())
	}
}

// TestQueuePeek verifies peek exposes the earliest event without
// consuming it.
func TestQueuePeek(t *testing.T) {
	q := newEventQueue()
	q.push(Event{JobID: "late", TriggerAt: time.Now().Add(2 * time.Hour)})
	q.push(Event{JobID: "early", TriggerAt: time.Now().Add(time.Hour)})

	if got := q.peek().JobID; got != "early" {
		t.Errorf("peek = %s, want early", got)
	}
	if q.len() != 2 {
		t.Errorf("peek consumed an event, len %d", q.len())
	}
}

// TestQueueDuplicateTriggerTimes verifies equal trigger times break
// ties on JobID so ordering stays deterministic.
func TestQueueDuplicateTriggerTimes(t *testing.T) {
	q := newEventQueue()
	sameTime := time.Now().Add(1 * time.Hour)

	q.push(Event{JobID: "jobC", TriggerAt: sameTime})
	q.push(Event{JobID: "jobA", TriggerAt: sameTime})
	q.push(Event{JobID: "jobB", TriggerAt: sameTime})

	for _, want := range []string{"jobA", "jobB", "jobC"} {
		if got := q.pop().JobID; got != want {
			t.Errorf("pop = %s, want %s", got, want)
		}
	}
}

// TestQueueRemoveJob verifies removal of a pending job leaves the rest
// ordered.
func TestQueueRemoveJob(t *testing.T) {
	q := newEventQueue()

	q.push(Event{JobID: "jobA", TriggerAt: time.Now().Add(1 * time.Hour)})
	q.push(Event{JobID: "jobB", TriggerAt: time.Now().Add(2 * time.Hour)})
	q.push(Event{JobID: "jobC", TriggerAt: time.Now().Add(3 * time.Hour)})

	if !q.removeJob("jobB") {
		t.Fatal("expected jobB to be removed")
	}
	if q.len() != 2 {
		t.Fatalf("expected 2 items after removal, got %d", q.len())
	}
	if got := q.pop().JobID; got != "jobA" {
		t.Errorf("pop = %s, want jobA", got)
	}
	if got := q.pop().JobID; got != "jobC" {
		t.Errorf("pop = %s, want jobC", got)
	}
}

// TestQueueRemoveMissingJob verifies removing an unknown id reports
// false and leaves the queue untouched.
func TestQueueRemoveMissingJob(t *testing.T) {
	q := newEventQueue()
	q.push(Event{JobID: "jobA", TriggerAt: time.Now().Add(time.Hour)})

	if q.removeJob("missing") {
		t.Error("expected removal of a missing id to report false")
	}
	if q.len() != 1 {
		t.Errorf("expected queue untouched, got len %d", q.len())
	}
}
