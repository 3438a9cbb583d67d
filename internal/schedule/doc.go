// Package schedule provides timed-job scheduling for the archfetch
// daemon. It implements a single-goroutine scheduler using a min-heap
// of Events sorted by trigger time, with a 60-second max-sleep-cap to
// handle NTP steps, DST transitions, and system sleep.
//
// The scheduler is a daemon-level component that fires events and calls
// a registered OnTrigger callback, used for recurring metadata refresh
// and periodic cache purge sweeps. It does not persist state — the heap
// is rebuilt from cached archive records on daemon restart.
package schedule
