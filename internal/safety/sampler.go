package safety

import (
	"runtime"
	"sync"
)

// ResourceReading is a point-in-time view of host resource usage.
type ResourceReading struct {
	CPUPercent  float64
	UsedMB      float64
	AvailableMB float64
}

// Sampler reports host resource usage. OS-specific collection lives behind
// this interface; the engine only consumes readings.
type Sampler interface {
	Sample() (ResourceReading, error)
}

// RuntimeSampler derives a conservative reading from the Go runtime. It
// reports process heap usage and treats CPU as idle; deployments wire a
// real host sampler in its place.
type RuntimeSampler struct {
	// AssumedAvailableMB is reported as available memory. Zero means
	// a large default that never trips thresholds.
	AssumedAvailableMB float64
}

// Sample returns a reading based on runtime memory statistics.
func (r *RuntimeSampler) Sample() (ResourceReading, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	available := r.AssumedAvailableMB
	if available == 0 {
		available = 4096
	}

	return ResourceReading{
		CPUPercent:  0,
		UsedMB:      float64(ms.Sys) / (1024 * 1024),
		AvailableMB: available,
	}, nil
}

// StaticSampler returns fixed readings. Used in tests and to simulate
// pressure scenarios.
type StaticSampler struct {
	mu      sync.Mutex
	reading ResourceReading
	err     error
}

// NewStaticSampler creates a sampler that always returns the given reading.
func NewStaticSampler(reading ResourceReading) *StaticSampler {
	return &StaticSampler{reading: reading}
}

// Set replaces the reading returned by Sample.
func (s *StaticSampler) Set(reading ResourceReading, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = reading
	s.err = err
}

// Sample returns the configured reading.
func (s *StaticSampler) Sample() (ResourceReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading, s.err
}
