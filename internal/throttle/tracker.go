package throttle

import "time"

// Clock returns the current time in unix nanos. Injected so tests control
// the window.
type Clock func() int64

// SystemClock reads the wall clock.
func SystemClock() int64 {
	return time.Now().UnixNano()
}

// SlidingWindowTracker bounds consumption to numThrottles tokens per sliding
// window. It keeps one next-available timestamp per token in a circular
// buffer ordered oldest first: a token is free once its timestamp has
// passed. Owned by the dispatcher goroutine, never locked.
type SlidingWindowTracker struct {
	configured int
	window     int64
	clock      Clock

	next []int64
	head int
}

// NewSlidingWindowTracker creates a tracker with n tokens per window.
func NewSlidingWindowTracker(n int, window time.Duration, clock Clock) *SlidingWindowTracker {
	if clock == nil {
		clock = SystemClock
	}
	t := &SlidingWindowTracker{
		configured: n,
		window:     int64(window),
		clock:      clock,
	}
	t.init(n)
	return t
}

func (t *SlidingWindowTracker) init(n int) {
	t.next = make([]int64, n)
	t.head = 0
}

// NumThrottles returns the current token budget.
func (t *SlidingWindowTracker) NumThrottles() int {
	return len(t.next)
}

// TryAcquire consumes one token if available.
func (t *SlidingWindowTracker) TryAcquire() bool {
	return t.TryAcquireN(1)
}

// TryAcquireN consumes n tokens if all n are available at once. Timestamps
// are stored oldest first, so checking the n-th oldest covers the rest.
func (t *SlidingWindowTracker) TryAcquireN(n int) bool {
	if n <= 0 || n > len(t.next) {
		return false
	}
	now := t.clock()
	if t.next[(t.head+n-1)%len(t.next)] > now {
		return false
	}
	avail := now + t.window
	for i := 0; i < n; i++ {
		t.next[t.head] = avail
		t.head = (t.head + 1) % len(t.next)
	}
	return true
}

// NextAvailNanos returns when the oldest token becomes available. A value in
// the past means a token is free now.
func (t *SlidingWindowTracker) NextAvailNanos() int64 {
	return t.next[t.head]
}

// SetNumThrottles replaces the budget, forgetting consumption history.
func (t *SlidingWindowTracker) SetNumThrottles(n int) {
	if n <= 0 {
		n = 1
	}
	t.init(n)
}

// Clear restores the configured budget with every token available.
func (t *SlidingWindowTracker) Clear() {
	t.init(t.configured)
}

// IsClear reports whether the tracker is at its configured budget with no
// consumption recorded.
func (t *SlidingWindowTracker) IsClear() bool {
	if len(t.next) != t.configured {
		return false
	}
	for _, v := range t.next {
		if v != 0 {
			return false
		}
	}
	return true
}
