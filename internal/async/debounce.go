package async

import (
	"sync"
	"time"
)

// Scheduler arms f to run after d and returns a stop function.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

// TimerScheduler is the wall-clock Scheduler.
func TimerScheduler(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Debouncer runs fn once after a quiet window of Delay following the last
// Trigger. Each Trigger cancels and re-arms the pending timer.
type Debouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	fn       func()
	schedule Scheduler
	stop     func() bool
	gen      uint64
	closed   bool
}

func NewDebouncer(delay time.Duration, fn func(), schedule Scheduler) *Debouncer {
	if schedule == nil {
		schedule = TimerScheduler
	}
	return &Debouncer{delay: delay, fn: fn, schedule: schedule}
}

// Trigger (re)starts the quiet window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.stop != nil {
		d.stop()
	}
	d.gen++
	gen := d.gen
	d.stop = d.schedule(d.delay, func() { d.fire(gen) })
}

// Pending reports whether a run is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

// Cancel disarms the pending run and reports whether one was armed.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop == nil {
		return false
	}
	d.stop()
	d.stop = nil
	d.gen++
	return true
}

// Stop cancels any pending run; later Triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.gen++
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
}

// fire runs fn for timer generation gen. A timer that already fired when it
// was re-armed or cancelled is stale and must not touch the newer state.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.stop = nil
	d.mu.Unlock()
	d.fn()
}
