package fetchlib

import (
	"testing"
	"time"
)

// TestNetworkClass_Satisfies verifies network gating for every
// class/requirement pair.
func TestNetworkClass_Satisfies(t *testing.T) {
	cases := []struct {
		class NetworkClass
		req   NetworkRequirement
		want  bool
	}{
		{NetworkOffline, NetworkAny, false},
		{NetworkOffline, NetworkUnmeteredOnly, false},
		{NetworkMetered, NetworkAny, true},
		{NetworkMetered, NetworkUnmeteredOnly, false},
		{NetworkUnmetered, NetworkAny, true},
		{NetworkUnmetered, NetworkUnmeteredOnly, true},
	}
	for _, tc := range cases {
		if got := tc.class.Satisfies(tc.req); got != tc.want {
			t.Errorf("class %d req %q: got %v, want %v", tc.class, tc.req, got, tc.want)
		}
	}
}

// TestTask_Eligible verifies queue admission honors status, NotBefore
// and the network requirement.
func TestTask_Eligible(t *testing.T) {
	now := time.Now()
	task := &Task{Status: StatusQueued, NetworkRequirement: NetworkAny}

	if !task.Eligible(now, NetworkMetered) {
		t.Error("queued task with no constraints must be eligible")
	}

	task.NotBefore = now.Add(time.Minute)
	if task.Eligible(now, NetworkMetered) {
		t.Error("task must not be eligible before NotBefore")
	}
	if !task.Eligible(now.Add(2*time.Minute), NetworkMetered) {
		t.Error("task must be eligible after NotBefore")
	}

	task.NotBefore = time.Time{}
	task.NetworkRequirement = NetworkUnmeteredOnly
	if task.Eligible(now, NetworkMetered) {
		t.Error("unmetered-only task must wait on a metered network")
	}

	task.Status = StatusPaused
	if task.Eligible(now, NetworkUnmetered) {
		t.Error("paused task must never be admitted")
	}
}

// TestTask_CanResume verifies resume detection on partial data.
func TestTask_CanResume(t *testing.T) {
	task := &Task{Status: StatusPaused, PartialBytes: 400, TotalBytes: 1000}
	if !task.CanResume() {
		t.Error("paused task with partial data must be resumable")
	}

	task.PartialBytes = 0
	if task.CanResume() {
		t.Error("task with no partial data has nothing to resume")
	}

	task.PartialBytes = 1000
	if task.CanResume() {
		t.Error("fully downloaded task has nothing to resume")
	}

	task.PartialBytes = 400
	task.Status = StatusDownloading
	if task.CanResume() {
		t.Error("active task must not be resumable")
	}
}

// TestTask_GetPercentage verifies progress reporting, including the
// unknown-size case.
func TestTask_GetPercentage(t *testing.T) {
	task := &Task{PartialBytes: 250, TotalBytes: 1000}
	if got := task.GetPercentage(); got != 25 {
		t.Errorf("percentage = %d, want 25", got)
	}
	task.TotalBytes = 0
	if got := task.GetPercentage(); got != 0 {
		t.Errorf("percentage with unknown size = %d, want 0", got)
	}
}

// TestTaskFilter_Match verifies list filtering by status and archive.
func TestTaskFilter_Match(t *testing.T) {
	task := &Task{ArchiveID: "nasa_images", Status: StatusQueued}

	var nilFilter *TaskFilter
	if !nilFilter.Match(task) {
		t.Error("nil filter must match everything")
	}
	if !(&TaskFilter{}).Match(task) {
		t.Error("zero filter must match everything")
	}
	if !(&TaskFilter{ArchiveID: "nasa_images"}).Match(task) {
		t.Error("matching archive filter rejected the task")
	}
	if (&TaskFilter{ArchiveID: "other"}).Match(task) {
		t.Error("mismatched archive filter accepted the task")
	}
	if !(&TaskFilter{Statuses: []Status{StatusPaused, StatusQueued}}).Match(task) {
		t.Error("status filter including queued rejected the task")
	}
	if (&TaskFilter{Statuses: []Status{StatusError}}).Match(task) {
		t.Error("status filter excluding queued accepted the task")
	}
}

// TestStatus_Terminal verifies only completed and error are terminal.
func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusQueued, StatusDownloading, StatusPaused} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusError} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}
