package executor

import (
	"sync"
	"time"
)

// QuotaState is a snapshot of the fixed-window counter.
type QuotaState struct {
	WindowStart      time.Time `json:"window_start"`
	RequestsInWindow int       `json:"requests_in_window"`
	MaxPerWindow     int       `json:"max_per_window"`
}

// Quota is a fixed-window request counter shared by all callers of an Executor.
type Quota struct {
	window time.Duration
	max    int

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewQuota creates a Quota allowing max requests per window. A non-positive
// max disables the limit.
func NewQuota(window time.Duration, max int) *Quota {
	return &Quota{window: window, max: max}
}

// Reserve takes a slot at now. If the window is exhausted nothing is taken
// and the time until the window resets is returned.
func (q *Quota) Reserve(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.windowStart.IsZero() || !now.Before(q.windowStart.Add(q.window)) {
		q.windowStart = now
		q.count = 0
	}
	if q.max <= 0 || q.count < q.max {
		q.count++
		return 0
	}
	return q.windowStart.Add(q.window).Sub(now)
}

// State returns a snapshot of the counter.
func (q *Quota) State() QuotaState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QuotaState{
		WindowStart:      q.windowStart,
		RequestsInWindow: q.count,
		MaxPerWindow:     q.max,
	}
}
