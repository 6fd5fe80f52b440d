package recovery

import (
	"sync"
	"time"
)

// tracker records recent restart times per worker.
type tracker struct {
	mu          sync.Mutex
	maxRestarts int
	period      time.Duration
	restarts    map[string][]time.Time
	now         func() time.Time
}

func newTracker(maxRestarts int, period time.Duration) *tracker {
	return &tracker{
		maxRestarts: maxRestarts,
		period:      period,
		restarts:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// reachedMaxRestarts returns true if restarting worker now would make more
// than maxRestarts restarts within the period. Otherwise the restart is
// recorded. Expired restart times are forgotten along the way.
func (t *tracker) reachedMaxRestarts(worker string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	periodStart := now.Add(-t.period)

	var recent []time.Time
	for _, at := range t.restarts[worker] {
		if at.After(periodStart) {
			recent = append(recent, at)
		}
	}

	// counting the restart that is about to happen
	if len(recent)+1 > t.maxRestarts {
		t.restarts[worker] = recent
		return true
	}
	t.restarts[worker] = append(recent, now)
	return false
}
