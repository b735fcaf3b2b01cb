package main

import (
	"sync"
	"time"
)

// tickMonitor accumulates timing statistics for the broker tick loop so
// operators can spot sessions falling behind the configured tick interval.
type tickMonitor struct {
	mu      sync.Mutex
	samples int
	total   time.Duration
	max     time.Duration
}

// observe records the duration of one completed tick across all sessions.
func (m *tickMonitor) observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.mu.Unlock()
}

// snapshot returns the average and worst tick durations observed so far.
func (m *tickMonitor) snapshot() (average, max time.Duration) {
	if m == nil {
		return 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == 0 {
		return 0, 0
	}
	return m.total / time.Duration(m.samples), m.max
}
