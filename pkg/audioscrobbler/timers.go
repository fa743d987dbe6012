package audioscrobbler

import (
	"sync"
	"time"
)

// Clock supplies the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from firing. It returns false if the call
	// already fired or was stopped.
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

// debouncer runs the most recently scheduled function once it has not been
// rescheduled for its delay.
type debouncer struct {
	mu    sync.Mutex
	clock Clock
	delay time.Duration
	timer Timer
}

func newDebouncer(clock Clock, delay time.Duration) *debouncer {
	return &debouncer{clock: clock, delay: delay}
}

// Trigger cancels any pending call and schedules f.
func (d *debouncer) Trigger(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, f)
}

// Stop cancels any pending call.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// backoff is a doubling delay between floor and ceiling.
// It is only used from the session loop and needs no locking.
type backoff struct {
	floor   time.Duration
	ceiling time.Duration
	current time.Duration
}

func newBackoff(floor, ceiling time.Duration) *backoff {
	return &backoff{floor: floor, ceiling: ceiling, current: floor}
}

// Next returns the delay to wait now and doubles it for the following call.
func (b *backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.ceiling {
		b.current = b.ceiling
	}
	return d
}

// Current returns the delay the next call to Next will return.
func (b *backoff) Current() time.Duration {
	return b.current
}

// Reset drops the delay back to the floor.
func (b *backoff) Reset() {
	b.current = b.floor
}
