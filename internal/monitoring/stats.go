package monitoring

import (
	"sync"
	"time"
)

// MeasureStats tracks measurement throughput with thread-safe operations.
// Worker goroutines feed it; a run loop periodically logs and resets it.
type MeasureStats struct {
	mu         sync.Mutex
	measured   int64
	degenerate int64
	failed     int64
	lastReset  time.Time
}

// NewMeasureStats creates a new MeasureStats instance.
func NewMeasureStats() *MeasureStats {
	return &MeasureStats{lastReset: time.Now()}
}

// AddMeasured increments the count of objects measured successfully.
func (ms *MeasureStats) AddMeasured() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.measured++
}

// AddDegenerate increments the count of objects skipped as degenerate.
func (ms *MeasureStats) AddDegenerate() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.degenerate++
}

// AddFailed increments the count of hard per-object failures.
func (ms *MeasureStats) AddFailed() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.failed++
}

// GetAndReset returns current counters and resets them.
func (ms *MeasureStats) GetAndReset() (measured, degenerate, failed int64, duration time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ms.lastReset)
	measured = ms.measured
	degenerate = ms.degenerate
	failed = ms.failed

	ms.measured = 0
	ms.degenerate = 0
	ms.failed = 0
	ms.lastReset = now
	return
}

// LogStats logs a one-line throughput summary and resets the counters.
func (ms *MeasureStats) LogStats(prefix string) {
	measured, degenerate, failed, duration := ms.GetAndReset()
	secs := duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	Logf("%s: %d measured (%.0f/s), %d degenerate, %d failed over %.1fs",
		prefix, measured, float64(measured)/secs, degenerate, failed, secs)
}
