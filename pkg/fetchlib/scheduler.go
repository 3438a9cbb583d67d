package fetchlib

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/archfetch/archfetch/pkg/logger"
)

const (
	DEF_WORKERS         = 4
	DEF_ACQUIRE_TIMEOUT = 2 * time.Minute

	// maxWorkerSleep caps how long an idle worker sleeps before
	// re-checking eligibility, so NotBefore wakeups are never missed
	// by more than this.
	maxWorkerSleep = 60 * time.Second
)

// NetworkStateFunc reports the current network class. Supplied by the
// caller; the scheduler never probes the network itself.
type NetworkStateFunc func() NetworkClass

// SchedulerConfig holds the knobs for the worker pool and retry policy.
type SchedulerConfig struct {
	// Workers is the worker pool size. It is independent of, and may
	// exceed, the RateLimiter's concurrency cap; excess workers just
	// block in Acquire.
	Workers int
	// AcquireTimeout bounds the wait for a limiter slot. Zero means
	// wait indefinitely.
	AcquireTimeout time.Duration
	// Retry configures transient-failure backoff.
	Retry RetryConfig
	// Network reports the current network class. Nil means always
	// unmetered.
	Network NetworkStateFunc
}

// DefaultSchedulerConfig returns a SchedulerConfig with sensible
// defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:        DEF_WORKERS,
		AcquireTimeout: DEF_ACQUIRE_TIMEOUT,
		Retry:          DefaultRetryConfig(),
	}
}

// stopIntent records why a running task's context was cancelled, so
// the worker knows which terminal state to persist.
type stopIntent int

const (
	intentNone stopIntent = iota
	intentPause
	intentCancel
)

// Scheduler runs the download task queue: admission by priority with
// FIFO tie-break, slot and throttle acquisition, the resume/retry
// state machine, and persistence of every transition.
type Scheduler struct {
	store     *Store
	limiter   *RateLimiter
	bandwidth *BandwidthManager
	metaCache *MetadataCache
	transfer  *Transfer
	cfg       SchedulerConfig
	l         logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// wake nudges idle workers after an enqueue or a state change.
	wake chan struct{}

	mu      sync.Mutex
	tasks   map[string]*Task
	running map[string]context.CancelFunc
	intents map[string]stopIntent
	seq     int64
	started bool
}

// NewScheduler creates a scheduler over the given collaborators and
// reloads persisted tasks. Tasks that were mid-transfer when the
// previous process died are re-queued with their resume cursor intact.
func NewScheduler(store *Store, limiter *RateLimiter, bandwidth *BandwidthManager, metaCache *MetadataCache, transfer *Transfer, cfg SchedulerConfig, l logger.Logger) (*Scheduler, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DEF_WORKERS
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if l == nil {
		l = logger.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:     store,
		limiter:   limiter,
		bandwidth: bandwidth,
		metaCache: metaCache,
		transfer:  transfer,
		cfg:       cfg,
		l:         l,
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		tasks:     make(map[string]*Task),
		running:   make(map[string]context.CancelFunc),
		intents:   make(map[string]stopIntent),
	}

	persisted, err := store.ListTasks()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("reload tasks: %w", err)
	}
	for _, t := range persisted {
		if t.Status == StatusDownloading {
			// The previous process died mid-transfer; the persisted
			// cursor is trustworthy, the status is not.
			t.Status = StatusQueued
			if err := store.SaveTask(t); err != nil {
				cancel()
				return nil, err
			}
		}
		s.tasks[t.ID] = t
	}
	s.seq, err = store.MaxSeq()
	if err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Start launches the worker pool. Safe to call once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		safeGo(s.l, &s.wg, fmt.Sprintf("worker-%d", i), nil, s.workerLoop)
	}
}

// Close stops the pool, waits for in-flight transfers to unwind, and
// persists every interrupted task as paused so a later process resumes
// it. Errors from the individual persists are aggregated.
func (s *Scheduler) Close() error {
	s.cancel()
	s.wg.Wait()
	var result *multierror.Error
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Status != StatusDownloading {
			continue
		}
		t.Status = StatusPaused
		if err := s.store.SaveTask(t); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Kick nudges the workers to re-check eligibility, e.g. after a timed
// wakeup fires. Never blocks.
func (s *Scheduler) Kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// EnqueueOpts are the caller-settable attributes of a new task.
type EnqueueOpts struct {
	ArchiveID          string
	Headers            Headers
	Checksum           string
	Priority           Priority
	NetworkRequirement NetworkRequirement
	// NotBefore delays first eligibility; zero means immediately.
	NotBefore time.Time
	// TotalBytes may be pre-filled from archive metadata; the server
	// response corrects it.
	TotalBytes int64
}

// Enqueue creates and persists a new queued task for one file.
func (s *Scheduler) Enqueue(url, destination string, opts *EnqueueOpts) (*Task, error) {
	if opts == nil {
		opts = &EnqueueOpts{}
	}
	if opts.NetworkRequirement == "" {
		opts.NetworkRequirement = NetworkAny
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &Task{
		ID:                 uuid.NewString(),
		ArchiveID:          opts.ArchiveID,
		URL:                url,
		Destination:        destination,
		Headers:            opts.Headers,
		TotalBytes:         opts.TotalBytes,
		Checksum:           opts.Checksum,
		Priority:           opts.Priority,
		NetworkRequirement: opts.NetworkRequirement,
		NotBefore:          opts.NotBefore,
		Status:             StatusQueued,
		DateAdded:          time.Now(),
		Seq:                s.seq,
	}
	if err := s.store.SaveTask(t); err != nil {
		return nil, err
	}
	s.tasks[t.ID] = t
	s.Kick()
	return t, nil
}

// EnqueueArchive creates one task per file of an archive description,
// all sharing the archive's identifier and options.
func (s *Scheduler) EnqueueArchive(desc *ArchiveDescription, destDir string, opts *EnqueueOpts) ([]*Task, error) {
	if opts == nil {
		opts = &EnqueueOpts{}
	}
	tasks := make([]*Task, 0, len(desc.Files))
	for _, f := range desc.Files {
		o := *opts
		o.ArchiveID = desc.Identifier
		o.Checksum = f.Checksum
		o.TotalBytes = f.Size
		t, err := s.Enqueue(f.URL, filepath.Join(destDir, f.Name), &o)
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// lookupLocked resolves an exact task ID or a unique ID prefix.
// Ambiguous prefixes resolve to nothing.
func (s *Scheduler) lookupLocked(id string) (*Task, bool) {
	if t, ok := s.tasks[id]; ok {
		return t, true
	}
	if len(id) < 4 {
		return nil, false
	}
	var match *Task
	for tid, t := range s.tasks {
		if strings.HasPrefix(tid, id) {
			if match != nil {
				return nil, false
			}
			match = t
		}
	}
	return match, match != nil
}

// Get returns a snapshot of one task.
func (s *Scheduler) Get(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupLocked(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// List returns snapshots of tasks matching the filter, in enqueue
// order.
func (s *Scheduler) List(filter *TaskFilter) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !filter.Match(t) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sortTasksBySeq(out)
	return out
}

// Pause stops a running task (keeping its partial data) or parks a
// queued one.
func (s *Scheduler) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupLocked(id)
	if !ok {
		return ErrTaskNotFound
	}
	switch t.Status {
	case StatusDownloading:
		s.intents[t.ID] = intentPause
		if cancel, ok := s.running[t.ID]; ok {
			cancel()
		}
		return nil
	case StatusQueued:
		t.Status = StatusPaused
		return s.store.SaveTask(t)
	default:
		return fmt.Errorf("cannot pause task in state %q", t.Status)
	}
}

// Resume re-queues a paused or errored task. The resume cursor is kept;
// the transfer validates it against the server before trusting it.
// An explicit resume resets the retry budget.
func (s *Scheduler) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupLocked(id)
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != StatusPaused && t.Status != StatusError {
		return fmt.Errorf("cannot resume task in state %q", t.Status)
	}
	t.Status = StatusQueued
	t.RetryCount = 0
	t.NotBefore = time.Time{}
	t.ErrorMessage = ""
	t.Reason = nil
	if err := s.store.SaveTask(t); err != nil {
		return err
	}
	s.Kick()
	return nil
}

// Cancel aborts a task and removes it along with any partial data.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupLocked(id)
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status == StatusDownloading {
		s.intents[t.ID] = intentCancel
		if cancel, ok := s.running[t.ID]; ok {
			cancel()
		}
		return nil
	}
	return s.removeLocked(t)
}

// Remove deletes a non-running task, keeping completed files on disk
// but discarding partial data of unfinished ones.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookupLocked(id)
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status == StatusDownloading {
		return ErrTaskActive
	}
	return s.removeLocked(t)
}

func (s *Scheduler) removeLocked(t *Task) error {
	if err := s.store.DeleteTask(t.ID); err != nil {
		return err
	}
	delete(s.tasks, t.ID)
	if t.Status != StatusCompleted && t.PartialBytes > 0 {
		if err := s.transfer.fs.Remove(t.Destination); err != nil && !os.IsNotExist(err) {
			s.l.Warning("failed to remove partial file %s: %s", t.Destination, err.Error())
		}
	}
	return nil
}

// claimNext picks the eligible queued task with the highest priority,
// FIFO among equals, and transitions it to downloading. Returns nil
// when nothing is eligible, along with the earliest future NotBefore
// to sleep towards.
func (s *Scheduler) claimNext() (*Task, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	net := NetworkUnmetered
	if s.cfg.Network != nil {
		net = s.cfg.Network()
	}
	var best *Task
	var nextWake time.Time
	for _, t := range s.tasks {
		if t.Status != StatusQueued {
			continue
		}
		if !t.NotBefore.IsZero() && now.Before(t.NotBefore) {
			if nextWake.IsZero() || t.NotBefore.Before(nextWake) {
				nextWake = t.NotBefore
			}
			continue
		}
		if !net.Satisfies(t.NetworkRequirement) {
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.Seq < best.Seq) {
			best = t
		}
	}
	if best == nil {
		return nil, nextWake
	}
	best.Status = StatusDownloading
	if err := s.store.SaveTask(best); err != nil {
		// Leave it queued; another worker will retry the claim.
		best.Status = StatusQueued
		s.l.Error("failed to persist claim of %s: %s", best.ID, err.Error())
		return nil, nextWake
	}
	cp := *best
	return &cp, nextWake
}

func (s *Scheduler) workerLoop() {
	for {
		t, nextWake := s.claimNext()
		if t == nil {
			sleep := maxWorkerSleep
			if !nextWake.IsZero() {
				if d := time.Until(nextWake); d < sleep {
					sleep = d
				}
			}
			if sleep < time.Millisecond {
				sleep = time.Millisecond
			}
			timer := time.NewTimer(sleep)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-s.wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}
		s.process(t)
		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

// process runs one claimed task to a terminal or re-queued state.
func (s *Scheduler) process(t *Task) {
	// Register the stop hook before any blocking wait, so Pause and
	// Cancel abort the slot wait and not just the transfer. A pause or
	// cancel that landed between the claim and here left an intent, in
	// which case the context starts out already cancelled.
	taskCtx, taskCancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.running[t.ID] = taskCancel
	if s.intents[t.ID] != intentNone {
		taskCancel()
	}
	s.mu.Unlock()
	defer func() {
		taskCancel()
		s.mu.Lock()
		delete(s.running, t.ID)
		delete(s.intents, t.ID)
		s.mu.Unlock()
	}()

	// A slot first, then a throttle; both released on any exit path.
	acquireCtx := taskCtx
	var acquireCancel context.CancelFunc
	if s.cfg.AcquireTimeout > 0 {
		acquireCtx, acquireCancel = context.WithTimeout(taskCtx, s.cfg.AcquireTimeout)
	}
	tok, err := s.limiter.Acquire(acquireCtx, t.Priority)
	if acquireCancel != nil {
		acquireCancel()
	}
	if err != nil {
		if s.ctx.Err() != nil {
			s.requeueQuietly(t)
			return
		}
		if taskCtx.Err() != nil {
			// Pause or Cancel arrived while waiting for a slot.
			s.handleCancellation(t)
			return
		}
		s.handleFailure(t, err)
		return
	}
	defer tok.Release()

	throttle := s.bandwidth.CreateThrottle(t.ID)
	defer s.bandwidth.RemoveThrottle(t.ID)

	s.l.Info("task %s: starting transfer of %s (resume at %d)", t.ID, t.URL, t.PartialBytes)
	err = s.transfer.Run(taskCtx, t, throttle, s.persistProgress)
	if err == nil {
		s.complete(t)
		return
	}
	if errors.Is(err, context.Canceled) {
		s.handleCancellation(t)
		return
	}
	s.handleFailure(t, err)
}

// persistProgress writes the task row after every chunk and mirrors
// the cursor into the shared index so listings see live progress.
func (s *Scheduler) persistProgress(t *Task) error {
	if err := s.store.SaveTask(t); err != nil {
		return storageError("persist", err)
	}
	s.mu.Lock()
	if shared, ok := s.tasks[t.ID]; ok {
		shared.PartialBytes = t.PartialBytes
		shared.TotalBytes = t.TotalBytes
		shared.ETag = t.ETag
		shared.LastModified = t.LastModified
	}
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) complete(t *Task) {
	s.mu.Lock()
	t.Status = StatusCompleted
	t.ErrorMessage = ""
	t.Reason = nil
	if err := s.store.SaveTask(t); err != nil {
		s.l.Error("task %s: failed to persist completion: %s", t.ID, err.Error())
	}
	s.tasks[t.ID] = t
	s.mu.Unlock()
	if s.metaCache != nil {
		s.metaCache.RecordCompletion(t.ArchiveID)
	}
	s.l.Info("task %s: completed (%d bytes)", t.ID, t.PartialBytes)
	s.Kick()
}

// handleCancellation resolves a user-initiated stop into paused,
// removed, or (on daemon shutdown) silently re-queued.
func (s *Scheduler) handleCancellation(t *Task) {
	s.mu.Lock()
	intent := s.intents[t.ID]
	delete(s.intents, t.ID)
	s.mu.Unlock()

	switch intent {
	case intentCancel:
		s.mu.Lock()
		if shared, ok := s.tasks[t.ID]; ok {
			shared.PartialBytes = t.PartialBytes
			_ = s.removeLocked(shared)
		}
		s.mu.Unlock()
		s.l.Info("task %s: cancelled", t.ID)
	case intentPause:
		s.setStatus(t, StatusPaused)
		s.l.Info("task %s: paused at %d/%d bytes", t.ID, t.PartialBytes, t.TotalBytes)
	default:
		// Daemon shutdown: keep it resumable without burning a retry.
		s.requeueQuietly(t)
	}
}

// requeueQuietly puts the task back to queued with no retry penalty.
func (s *Scheduler) requeueQuietly(t *Task) {
	s.setStatus(t, StatusQueued)
}

func (s *Scheduler) setStatus(t *Task, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Status = status
	if err := s.store.SaveTask(t); err != nil {
		s.l.Error("task %s: failed to persist status %s: %s", t.ID, status, err.Error())
	}
	s.tasks[t.ID] = t
}

// handleFailure applies the retry policy: transient categories re-queue
// with exponential backoff (honoring any server-suggested delay), fatal
// categories and an exhausted budget become terminal errors.
func (s *Scheduler) handleFailure(t *Task, err error) {
	category := Classify(err)

	// A server cool-down applies to the whole limiter, not just this
	// task.
	var te *TransferError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		s.limiter.ReportServerDelay(int(te.RetryAfter / time.Second))
	}

	if category.Retryable() && s.cfg.Retry.ShouldRetry(t.RetryCount, err) {
		delay := s.cfg.Retry.Backoff(t.RetryCount)
		if te != nil && te.RetryAfter > delay {
			delay = te.RetryAfter
		}
		s.mu.Lock()
		t.RetryCount++
		t.Status = StatusQueued
		t.NotBefore = time.Now().Add(delay)
		t.ErrorMessage = err.Error()
		if perr := s.store.SaveTask(t); perr != nil {
			s.l.Error("task %s: failed to persist retry: %s", t.ID, perr.Error())
		}
		s.tasks[t.ID] = t
		s.mu.Unlock()
		s.l.Warning("task %s: %s; retry %d/%d in %s", t.ID, err.Error(), t.RetryCount, s.cfg.Retry.MaxRetries, delay)
		return
	}

	reason := ReasonFor(err)
	if category.Retryable() {
		// Transient failure with an exhausted budget: still surfaced
		// with the retry offer, but no further automatic attempts.
		reason.Retryable = true
		reason.Message = fmt.Sprintf("gave up after %d retries: %s", t.RetryCount, err.Error())
	}
	s.mu.Lock()
	t.Status = StatusError
	t.ErrorMessage = reason.Message
	t.Reason = &reason
	if perr := s.store.SaveTask(t); perr != nil {
		s.l.Error("task %s: failed to persist error state: %s", t.ID, perr.Error())
	}
	s.tasks[t.ID] = t
	s.mu.Unlock()
	s.l.Error("task %s: %s", t.ID, reason.Message)
}

// sortTasksBySeq orders tasks by enqueue sequence, oldest first.
func sortTasksBySeq(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Seq < tasks[j].Seq
	})
}
