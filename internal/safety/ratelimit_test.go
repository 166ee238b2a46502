package safety

import (
	"testing"
	"time"
)

func TestSlidingWindowDeniesSixthThenRecoversAfterWindow(t *testing.T) {
	w := newSlidingWindow(5, time.Minute)
	start := time.Now()

	for i := 0; i < 5; i++ {
		if !w.allow(start.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}

	if w.allow(start.Add(5 * time.Second)) {
		t.Fatal("sixth call inside the window should be denied")
	}

	// After the window slides past the first event, capacity frees up.
	if !w.allow(start.Add(61 * time.Second)) {
		t.Fatal("call after window expiry should be allowed")
	}
}

func TestSlidingWindowOccupancy(t *testing.T) {
	w := newSlidingWindow(10, time.Minute)
	start := time.Now()

	for i := 0; i < 4; i++ {
		w.allow(start)
	}
	if got := w.occupancy(start); got != 4 {
		t.Errorf("occupancy = %d, want 4", got)
	}
	if got := w.occupancy(start.Add(2 * time.Minute)); got != 0 {
		t.Errorf("occupancy after expiry = %d, want 0", got)
	}
}

func TestBucketForActionType(t *testing.T) {
	tests := []struct {
		actionType string
		want       string
	}{
		{"system_command", BucketActions},
		{"file_operation", BucketActions},
		{"api_call", BucketAPICalls},
		{"memory_operation", BucketMemoryWrites},
		{"analysis", BucketActions},
		{"", BucketActions},
	}
	for _, tt := range tests {
		if got := bucketForActionType(tt.actionType); got != tt.want {
			t.Errorf("bucketForActionType(%q) = %q, want %q", tt.actionType, got, tt.want)
		}
	}
}

func TestRateLimiterIsolatesBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, 1)
	now := time.Now()

	if _, ok := rl.Allow("system_command", now); !ok {
		t.Fatal("first action should be allowed")
	}
	if _, ok := rl.Allow("file_operation", now); ok {
		t.Fatal("second action in the shared actions bucket should be denied")
	}
	// api_call uses its own bucket.
	if _, ok := rl.Allow("api_call", now); !ok {
		t.Fatal("api_call in a separate bucket should be allowed")
	}
}
