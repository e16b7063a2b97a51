package session

import (
	"math"
	"sync"
	"time"
)

// DefaultDuration is how long an interview runs from its actual start.
const DefaultDuration = 10 * time.Minute

// scheduleFunc runs f after d. The returned func cancels it if it has not run yet.
type scheduleFunc func(d time.Duration, f func()) (cancel func())

func afterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Timer tracks the remaining interview time and fires once when it runs out.
type Timer struct {
	end      time.Time
	now      func() time.Time
	schedule scheduleFunc

	mu     sync.Mutex
	last   int
	cancel func()
}

// NewTimer ends duration after startedAt.
func NewTimer(startedAt time.Time, duration time.Duration, now func() time.Time, schedule scheduleFunc) *Timer {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if now == nil {
		now = time.Now
	}
	if schedule == nil {
		schedule = afterFunc
	}
	return &Timer{
		end:      startedAt.Add(duration),
		now:      now,
		schedule: schedule,
		last:     math.MaxInt,
	}
}

// SecondsRemaining never increases between calls and never goes below zero.
func (t *Timer) SecondsRemaining() int {
	left := int(t.end.Sub(t.now()) / time.Second)
	if left < 0 {
		left = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if left > t.last {
		left = t.last
	}
	t.last = left
	return left
}

// Start arranges for onExpire to run when time is up. A resumed interview whose
// time already elapsed expires immediately.
func (t *Timer) Start(onExpire func()) {
	d := t.end.Sub(t.now())
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.cancel = t.schedule(d, onExpire)
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
