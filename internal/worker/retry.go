package worker

import (
	"time"

	"invoicesync/internal/config"
)

// RetryPolicy is the processing cadence. Failed tasks are retried on the next
// tick, so the interval is also the retry delay; there is no backoff.
// LockWait bounds how long a manual run waits for a cycle already in progress.
type RetryPolicy struct {
	Interval time.Duration
	LockTTL  time.Duration
	LockWait time.Duration
}

// PolicyFromConfig reads the schedule from the sync section.
func PolicyFromConfig(cfg config.SyncConfig) RetryPolicy {
	return RetryPolicy{Interval: cfg.Interval, LockTTL: cfg.LockTTL, LockWait: cfg.LockWait}.withDefaults()
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.Interval <= 0 {
		r.Interval = time.Minute
	}
	if r.LockTTL <= 0 {
		r.LockTTL = 2 * time.Minute
	}
	if r.LockWait <= 0 {
		r.LockWait = 20 * time.Second
	}
	// A lock must outlive a full cycle of API calls.
	if r.LockTTL < r.Interval {
		r.LockTTL = r.Interval
	}
	return r
}
