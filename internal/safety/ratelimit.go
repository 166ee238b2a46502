package safety

import (
	"sync"
	"time"
)

// Rate limit bucket names.
const (
	BucketActions      = "actions"
	BucketAPICalls     = "api_calls"
	BucketMemoryWrites = "memory_writes"
)

// bucketForActionType maps an action type to the bucket that limits it.
func bucketForActionType(actionType string) string {
	switch actionType {
	case "system_command", "file_operation":
		return BucketActions
	case "api_call":
		return BucketAPICalls
	case "memory_operation":
		return BucketMemoryWrites
	default:
		return BucketActions
	}
}

// slidingWindow counts events inside a rolling time window.
// Check-and-record is atomic: an allowed call is recorded before the lock
// is released, so concurrent callers cannot both consume the last slot.
type slidingWindow struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	events []time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{limit: limit, window: window}
}

// allow reports whether another event fits in the window, recording it
// when it does.
func (w *slidingWindow) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.events) >= w.limit {
		return false
	}
	w.events = append(w.events, now)
	return true
}

// occupancy returns the number of events currently inside the window.
func (w *slidingWindow) occupancy(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return len(w.events)
}

// prune drops events older than the window. Caller holds the lock.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	keep := w.events[:0]
	for _, t := range w.events {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	w.events = keep
}

// RateLimiter enforces per-bucket sliding window limits.
type RateLimiter struct {
	buckets map[string]*slidingWindow
}

// NewRateLimiter creates a limiter with the three standard buckets.
// Window length is one minute for all buckets.
func NewRateLimiter(actionsPerMinute, apiCallsPerMinute, memoryWritesPerMinute int) *RateLimiter {
	return &RateLimiter{
		buckets: map[string]*slidingWindow{
			BucketActions:      newSlidingWindow(actionsPerMinute, time.Minute),
			BucketAPICalls:     newSlidingWindow(apiCallsPerMinute, time.Minute),
			BucketMemoryWrites: newSlidingWindow(memoryWritesPerMinute, time.Minute),
		},
	}
}

// Allow checks the bucket for the action type and records the event when
// it fits. Returns the bucket name and whether the action may proceed.
func (rl *RateLimiter) Allow(actionType string, now time.Time) (string, bool) {
	bucket := bucketForActionType(actionType)
	return bucket, rl.buckets[bucket].allow(now)
}

// Occupancy returns current per-bucket usage.
func (rl *RateLimiter) Occupancy(now time.Time) map[string]int {
	usage := make(map[string]int, len(rl.buckets))
	for name, w := range rl.buckets {
		usage[name] = w.occupancy(now)
	}
	return usage
}
