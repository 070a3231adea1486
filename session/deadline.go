package session

import (
	"sync"
	"time"
)

// Deadline is a single-shot rearmable timer slot. Arming always cancels the
// predecessor first, so at most one callback is pending per slot at any
// time. A stopped timer whose callback is already in flight cannot be
// recalled; callers guard against that with a generation check.
type Deadline struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Arm schedules fn to run once after delay, cancelling any pending
// callback. A non-positive delay fires fn on its own goroutine immediately.
func (d *Deadline) Arm(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	if delay < 0 {
		delay = 0
	}
	d.timer = time.AfterFunc(delay, fn)
}

// Cancel stops any pending callback.
func (d *Deadline) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Armed reports whether a callback has been scheduled and not cancelled.
// It does not track whether the callback already ran.
func (d *Deadline) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
