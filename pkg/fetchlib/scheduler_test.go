package fetchlib

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newTestScheduler(t *testing.T, client *http.Client, cfg SchedulerConfig) (*Scheduler, afero.Fs) {
	t.Helper()
	store := newTestStore(t)
	fs := afero.NewMemMapFs()
	sched, err := NewScheduler(
		store,
		NewRateLimiter(3),
		NewBandwidthManager(0),
		nil,
		NewTransfer(client, fs),
		cfg,
		nil,
	)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	t.Cleanup(func() { sched.Close() })
	return sched, fs
}

func quickRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
}

func waitForStatus(t *testing.T, s *Scheduler, id string, want Status) *Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", id, err)
		}
		if task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	task, _ := s.Get(id)
	t.Fatalf("task %s stuck in %q, want %q", id, task.Status, want)
	return nil
}

// TestScheduler_DownloadsToCompletion verifies the whole path: enqueue,
// claim, transfer, persist, complete.
func TestScheduler_DownloadsToCompletion(t *testing.T) {
	content := strings.Repeat("payload ", 512)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Etag", `"v1"`)
		w.Write([]byte(content))
	}))
	defer srv.Close()

	sched, fs := newTestScheduler(t, srv.Client(), SchedulerConfig{Workers: 2, Retry: quickRetry()})
	sched.Start()

	task, err := sched.Enqueue(srv.URL, "/dl/file.bin", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	done := waitForStatus(t, sched, task.ID, StatusCompleted)
	if done.PartialBytes != int64(len(content)) {
		t.Errorf("cursor = %d, want %d", done.PartialBytes, len(content))
	}
	data, err := afero.ReadFile(fs, "/dl/file.bin")
	if err != nil || string(data) != content {
		t.Errorf("destination content mismatch (err=%v)", err)
	}
}

// TestScheduler_ClaimOrder verifies admission picks the highest
// priority first and FIFO among equals.
func TestScheduler_ClaimOrder(t *testing.T) {
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	low, err := sched.Enqueue("https://example.org/low", "/dl/low", &EnqueueOpts{Priority: PriorityLow})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	n1, err := sched.Enqueue("https://example.org/n1", "/dl/n1", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	n2, err := sched.Enqueue("https://example.org/n2", "/dl/n2", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	high, err := sched.Enqueue("https://example.org/high", "/dl/high", &EnqueueOpts{Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	wantOrder := []string{high.ID, n1.ID, n2.ID, low.ID}
	for i, want := range wantOrder {
		claimed, _ := sched.claimNext()
		if claimed == nil {
			t.Fatalf("claim %d returned nothing", i)
		}
		if claimed.ID != want {
			t.Errorf("claim %d = %s, want %s", i, claimed.ID, want)
		}
		if claimed.Status != StatusDownloading {
			t.Errorf("claim %d status = %q, want downloading", i, claimed.Status)
		}
	}
	if claimed, _ := sched.claimNext(); claimed != nil {
		t.Errorf("extra claim returned %s, want nothing", claimed.ID)
	}
}

// TestScheduler_NotBeforeDelaysAdmission verifies a future NotBefore
// holds the task and is reported as the next wakeup.
func TestScheduler_NotBeforeDelaysAdmission(t *testing.T) {
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	notBefore := time.Now().Add(time.Hour)
	if _, err := sched.Enqueue("https://example.org/a", "/dl/a", &EnqueueOpts{NotBefore: notBefore}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	claimed, nextWake := sched.claimNext()
	if claimed != nil {
		t.Fatalf("claimed %s, want nothing before NotBefore", claimed.ID)
	}
	if !nextWake.Equal(notBefore) {
		t.Errorf("nextWake = %v, want %v", nextWake, notBefore)
	}
}

// TestScheduler_NetworkGating verifies unmetered-only tasks wait on a
// metered network.
func TestScheduler_NetworkGating(t *testing.T) {
	network := NetworkMetered
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{
		Retry:   quickRetry(),
		Network: func() NetworkClass { return network },
	})

	if _, err := sched.Enqueue("https://example.org/a", "/dl/a", &EnqueueOpts{NetworkRequirement: NetworkUnmeteredOnly}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if claimed, _ := sched.claimNext(); claimed != nil {
		t.Fatalf("claimed %s on a metered network", claimed.ID)
	}

	network = NetworkUnmetered
	if claimed, _ := sched.claimNext(); claimed == nil {
		t.Fatal("task not claimed once the network became unmetered")
	}
}

// TestScheduler_RetryOnTransientFailure verifies a transient failure
// re-queues with backoff and an incremented retry count.
func TestScheduler_RetryOnTransientFailure(t *testing.T) {
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	task, err := sched.Enqueue("https://example.org/a", "/dl/a", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	before := time.Now()
	sched.handleFailure(task, NewTransferError(CategoryNetwork, "get", errors.New("connection reset")))

	got, err := sched.Get(task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusQueued || got.RetryCount != 1 {
		t.Errorf("task = %q retries %d, want queued/1", got.Status, got.RetryCount)
	}
	if got.NotBefore.Before(before) {
		t.Error("retry must carry a backoff delay")
	}
}

// TestScheduler_RetryAfterFeedsLimiter verifies a 429's delay both
// backs off the task and cools down the shared limiter.
func TestScheduler_RetryAfterFeedsLimiter(t *testing.T) {
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	task, err := sched.Enqueue("https://example.org/a", "/dl/a", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	te := NewTransferError(CategoryRateLimited, "range-get", errors.New("429"))
	te.RetryAfter = 30 * time.Second
	sched.handleFailure(task, te)

	got, _ := sched.Get(task.ID)
	if got.Status != StatusQueued || got.RetryCount != 1 {
		t.Errorf("task = %q retries %d, want queued/1", got.Status, got.RetryCount)
	}
	if until := time.Until(got.NotBefore); until < 20*time.Second {
		t.Errorf("NotBefore in %v, want at least the server delay", until)
	}
	if sched.limiter.Status().CooldownRemaining <= 0 {
		t.Error("server delay must cool down the shared limiter")
	}
}

// TestScheduler_FatalFailureIsTerminal verifies non-retryable failures
// land in the error state with a structured reason.
func TestScheduler_FatalFailureIsTerminal(t *testing.T) {
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	task, err := sched.Enqueue("https://example.org/a", "/dl/a", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	sched.handleFailure(task, NewTransferError(CategoryStorage, "write", errors.New("no space left on device")))

	got, _ := sched.Get(task.ID)
	if got.Status != StatusError || got.RetryCount != 0 {
		t.Errorf("task = %q retries %d, want error/0", got.Status, got.RetryCount)
	}
	if got.Reason == nil || got.Reason.Retryable || got.Reason.Remedy == "" {
		t.Errorf("reason = %+v, want fatal with remedy", got.Reason)
	}
}

// TestScheduler_RetryBudgetExhausted verifies the task turns terminal
// once the budget runs out, still flagged retryable for a manual retry.
func TestScheduler_RetryBudgetExhausted(t *testing.T) {
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	task, err := sched.Enqueue("https://example.org/a", "/dl/a", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	transient := NewTransferError(CategoryNetwork, "get", errors.New("connection reset"))
	for i := 0; i < 3; i++ {
		got, _ := sched.Get(task.ID)
		sched.handleFailure(got, transient)
	}

	got, _ := sched.Get(task.ID)
	if got.Status != StatusError {
		t.Fatalf("status = %q, want error after exhausted budget", got.Status)
	}
	if got.Reason == nil || !got.Reason.Retryable {
		t.Errorf("reason = %+v, want retryable offer", got.Reason)
	}
	if !strings.Contains(got.Reason.Message, "gave up after") {
		t.Errorf("message = %q, want exhausted-budget wording", got.Reason.Message)
	}
}

// TestScheduler_PauseResume verifies the queued pause path and that an
// explicit resume clears the retry state.
func TestScheduler_PauseResume(t *testing.T) {
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	task, err := sched.Enqueue("https://example.org/a", "/dl/a", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := sched.Pause(task.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	got, _ := sched.Get(task.ID)
	if got.Status != StatusPaused {
		t.Fatalf("status = %q, want paused", got.Status)
	}
	if err := sched.Pause(task.ID); err == nil {
		t.Error("pausing a paused task must fail")
	}

	// Simulate accumulated retry state, then resume.
	sched.mu.Lock()
	sched.tasks[task.ID].RetryCount = 2
	sched.tasks[task.ID].ErrorMessage = "old failure"
	sched.mu.Unlock()
	if err := sched.Resume(task.ID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	got, _ = sched.Get(task.ID)
	if got.Status != StatusQueued || got.RetryCount != 0 || got.ErrorMessage != "" {
		t.Errorf("resumed task = %+v, want clean queued state", got)
	}
}

// TestScheduler_CancelRemovesPartialData verifies cancel deletes the
// task row and the partial file, keeping completed files alone.
func TestScheduler_CancelRemovesPartialData(t *testing.T) {
	sched, fs := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	task, err := sched.Enqueue("https://example.org/a", "/dl/a", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := afero.WriteFile(fs, "/dl/a", []byte("partial"), 0644); err != nil {
		t.Fatalf("seeding partial file failed: %v", err)
	}
	sched.mu.Lock()
	sched.tasks[task.ID].PartialBytes = 7
	sched.mu.Unlock()

	if err := sched.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := sched.Get(task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Get after cancel: got %v, want ErrTaskNotFound", err)
	}
	if exists, _ := afero.Exists(fs, "/dl/a"); exists {
		t.Error("partial file survived the cancel")
	}
}

// newSlotWaitScheduler builds a started scheduler whose single limiter
// slot is already held, so a claimed task blocks waiting for it.
func newSlotWaitScheduler(t *testing.T, srvURL string, client *http.Client) (*Scheduler, *SlotToken, *Task) {
	t.Helper()
	limiter := NewRateLimiter(1)
	tok, err := limiter.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	sched, err := NewScheduler(newTestStore(t), limiter, NewBandwidthManager(0), nil,
		NewTransfer(client, afero.NewMemMapFs()),
		SchedulerConfig{Workers: 1, Retry: quickRetry()}, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	t.Cleanup(func() { sched.Close() })
	sched.Start()

	task, err := sched.Enqueue(srvURL, "/dl/file.bin", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitForStatus(t, sched, task.ID, StatusDownloading)
	return sched, tok, task
}

// TestScheduler_CancelAbortsSlotWait verifies Cancel reaches a claimed
// task that is still blocked waiting for a limiter slot, instead of
// letting it download once the slot frees up.
func TestScheduler_CancelAbortsSlotWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 256)))
	}))
	defer srv.Close()

	sched, tok, task := newSlotWaitScheduler(t, srv.URL, srv.Client())

	if err := sched.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := sched.Get(task.ID); errors.Is(err, ErrTaskNotFound) {
			break
		}
		if time.Now().After(deadline) {
			got, _ := sched.Get(task.ID)
			t.Fatalf("cancelled task still present: %+v", got)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The slot was never released to it; freeing it now must not
	// revive the task.
	tok.Release()
	time.Sleep(100 * time.Millisecond)
	if _, err := sched.Get(task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("task came back after the slot freed: %v", err)
	}
}

// TestScheduler_PauseAbortsSlotWait verifies Pause parks a claimed task
// that is still waiting for a limiter slot.
func TestScheduler_PauseAbortsSlotWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 256)))
	}))
	defer srv.Close()

	sched, tok, task := newSlotWaitScheduler(t, srv.URL, srv.Client())
	defer tok.Release()

	if err := sched.Pause(task.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	got := waitForStatus(t, sched, task.ID, StatusPaused)
	if got.PartialBytes != 0 {
		t.Errorf("paused slot-waiter has cursor %d, want 0", got.PartialBytes)
	}
}

// TestScheduler_ReloadRequeuesInterrupted verifies a task persisted as
// downloading by a dead process comes back queued with its cursor.
func TestScheduler_ReloadRequeuesInterrupted(t *testing.T) {
	store := newTestStore(t)
	interrupted := &Task{
		ID: "t1", URL: "https://example.org/a", Destination: "/dl/a",
		PartialBytes: 512, TotalBytes: 2048, ETag: `"v1"`,
		Status: StatusDownloading, DateAdded: time.Now(), Seq: 1,
	}
	if err := store.SaveTask(interrupted); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	sched, err := NewScheduler(store, NewRateLimiter(1), NewBandwidthManager(0), nil,
		NewTransfer(nil, afero.NewMemMapFs()), SchedulerConfig{Retry: quickRetry()}, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	defer sched.Close()

	got, err := sched.Get("t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusQueued {
		t.Errorf("status = %q, want queued after reload", got.Status)
	}
	if got.PartialBytes != 512 || got.ETag != `"v1"` {
		t.Errorf("resume state lost: %+v", got)
	}

	// The re-queue must be persisted too.
	row, err := store.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if row.Status != StatusQueued {
		t.Errorf("persisted status = %q, want queued", row.Status)
	}
}

// TestScheduler_PrefixLookup verifies task commands accept a unique ID
// prefix.
func TestScheduler_PrefixLookup(t *testing.T) {
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	task, err := sched.Enqueue("https://example.org/a", "/dl/a", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	got, err := sched.Get(task.ID[:8])
	if err != nil {
		t.Fatalf("Get by prefix failed: %v", err)
	}
	if got.ID != task.ID {
		t.Errorf("prefix resolved to %s, want %s", got.ID, task.ID)
	}
	if _, err := sched.Get(task.ID[:2]); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("short prefix: got %v, want ErrTaskNotFound", err)
	}
}

// TestScheduler_EnqueueArchive verifies per-file task fan-out under the
// destination directory.
func TestScheduler_EnqueueArchive(t *testing.T) {
	sched, _ := newTestScheduler(t, nil, SchedulerConfig{Retry: quickRetry()})

	desc := sampleDescription("nasa_images")
	tasks, err := sched.EnqueueArchive(desc, "/dl/nasa_images", &EnqueueOpts{Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("EnqueueArchive failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("enqueued %d tasks, want 2", len(tasks))
	}
	for i, task := range tasks {
		if task.ArchiveID != "nasa_images" {
			t.Errorf("task %d archive = %q", i, task.ArchiveID)
		}
		if task.Priority != PriorityHigh {
			t.Errorf("task %d priority = %v, want high", i, task.Priority)
		}
		if !strings.HasPrefix(task.Destination, "/dl/nasa_images/") {
			t.Errorf("task %d destination = %q", i, task.Destination)
		}
		if task.TotalBytes != desc.Files[i].Size {
			t.Errorf("task %d size = %d, want %d", i, task.TotalBytes, desc.Files[i].Size)
		}
	}

	listed := sched.List(&TaskFilter{ArchiveID: "nasa_images"})
	if len(listed) != 2 || listed[0].Seq > listed[1].Seq {
		t.Errorf("List returned %d tasks out of order", len(listed))
	}
}

// TestScheduler_ResumeUsesRangeRequest verifies a paused task resumes
// with a range request instead of refetching from zero.
func TestScheduler_ResumeUsesRangeRequest(t *testing.T) {
	content := []byte(strings.Repeat("chunk", 1000))
	origin := &rangeFileServer{content: content, etag: `"v1"`}
	srv := httptest.NewServer(origin)
	defer srv.Close()

	sched, fs := newTestScheduler(t, srv.Client(), SchedulerConfig{Workers: 1, Retry: quickRetry()})

	task, err := sched.Enqueue(srv.URL, "/dl/file.bin", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := afero.WriteFile(fs, "/dl/file.bin", content[:2000], 0644); err != nil {
		t.Fatalf("seeding partial file failed: %v", err)
	}
	sched.mu.Lock()
	st := sched.tasks[task.ID]
	st.Status = StatusPaused
	st.PartialBytes = 2000
	st.TotalBytes = int64(len(content))
	st.ETag = `"v1"`
	sched.mu.Unlock()

	if err := sched.Resume(task.ID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	sched.Start()

	done := waitForStatus(t, sched, task.ID, StatusCompleted)
	if done.PartialBytes != int64(len(content)) {
		t.Errorf("cursor = %d, want %d", done.PartialBytes, len(content))
	}
	if len(origin.ranges) != 1 || origin.ranges[0] != "bytes=2000-" {
		t.Errorf("range headers = %v, want [bytes=2000-]", origin.ranges)
	}
	data, _ := afero.ReadFile(fs, "/dl/file.bin")
	if string(data) != string(content) {
		t.Error("resumed content mismatch")
	}
}
