package collector

import (
	"sync"
	"time"
)

// busyTracker turns cumulative per-device "milliseconds spent doing I/O"
// counters into a busy percentage between successive calls.
type busyTracker struct {
	mu     sync.Mutex
	now    func() time.Time
	prev   map[string]uint64
	prevAt time.Time
}

func newBusyTracker(now func() time.Time) *busyTracker {
	return &busyTracker{now: now}
}

// update records counters and returns max over devices of
// (current - previous) / elapsed_ms * 100, clamped to [0,100].
// If no previous reading exists the result is 0 (correct on the next call).
func (b *busyTracker) update(ioMs map[string]uint64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	prev, prevAt := b.prev, b.prevAt
	b.prev, b.prevAt = ioMs, now

	if prev == nil {
		return 0
	}
	elapsedMs := float64(now.Sub(prevAt)) / float64(time.Millisecond)
	if elapsedMs <= 0 {
		return 0
	}

	var busiest float64
	for dev, cur := range ioMs {
		old, ok := prev[dev]
		if !ok || cur < old {
			// New device or counter reset
			continue
		}
		pct := float64(cur-old) / elapsedMs * 100
		if pct > busiest {
			busiest = pct
		}
	}
	return clampPercent(busiest)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
