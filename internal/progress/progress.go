package progress

import (
	"fmt"
	"sync"
	"time"
)

// Calculating is reported while fewer than two completions have landed in
// the window and no rate can be derived yet.
const Calculating = "Calculating..."

// Tracker estimates throughput and remaining time from a bounded sliding
// window of recent completion timestamps.
type Tracker struct {
	mu         sync.Mutex
	windowSize int
	timestamps []time.Time
	now        func() time.Time // overridable for tests
}

func NewTracker(windowSize int) *Tracker {
	if windowSize < 2 {
		windowSize = 2
	}
	return &Tracker{
		windowSize: windowSize,
		timestamps: make([]time.Time, 0, windowSize),
		now:        time.Now,
	}
}

// RecordCompletion appends the current time to the window, evicting the
// oldest sample once the window is full.
func (t *Tracker) RecordCompletion() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.timestamps = append(t.timestamps, t.now())
	if len(t.timestamps) > t.windowSize {
		t.timestamps = t.timestamps[1:]
	}
}

// Rate returns the smoothed completion rate in checks per second. The
// second return is false while the window holds fewer than two samples or
// spans zero time.
func (t *Tracker) Rate() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.timestamps)
	if n < 2 {
		return 0, false
	}

	span := t.timestamps[n-1].Sub(t.timestamps[0]).Seconds()
	if span <= 0 {
		return 0, false
	}

	return float64(n-1) / span, true
}

// Remaining estimates time left for the given totals based on the current
// window rate.
func (t *Tracker) Remaining(total, processed int) (time.Duration, bool) {
	rate, ok := t.Rate()
	if !ok || rate <= 0 {
		return 0, false
	}

	remaining := total - processed
	if remaining < 0 {
		return 0, false
	}

	return time.Duration(float64(remaining)/rate) * time.Second, true
}

// FormatRate renders the current rate as "N.N checks/sec", or the
// Calculating sentinel when no rate is available yet.
func (t *Tracker) FormatRate() string {
	rate, ok := t.Rate()
	if !ok {
		return Calculating
	}
	return fmt.Sprintf("%.1f checks/sec", rate)
}

// FormatETA renders the estimated remaining time, or the Calculating
// sentinel when no estimate is available yet.
func (t *Tracker) FormatETA(total, processed int) string {
	remaining, ok := t.Remaining(total, processed)
	if !ok {
		return Calculating
	}
	return FormatDuration(remaining)
}

// FormatDuration formats a duration by magnitude: "45s", "2m30s", "1h23m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	totalSeconds := int(d.Seconds())
	switch {
	case totalSeconds < 60:
		return fmt.Sprintf("%ds", totalSeconds)
	case totalSeconds < 3600:
		return fmt.Sprintf("%dm%02ds", totalSeconds/60, totalSeconds%60)
	default:
		return fmt.Sprintf("%dh%02dm", totalSeconds/3600, (totalSeconds%3600)/60)
	}
}
