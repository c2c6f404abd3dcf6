package task

import (
	"sync"
	"time"
)

// Trigger coalesces bursts of appends into a single scheduler run: every
// Notify (re)arms one debounce timer, and the run fires only after the
// queue has been quiet for the full window. A drag-and-drop of many files
// therefore triggers one run, not one per file.
type Trigger struct {
	mu      sync.Mutex
	delay   time.Duration
	fire    func()
	timer   *time.Timer
	pending bool
	stopped bool
}

func NewTrigger(delay time.Duration, fire func()) *Trigger {
	return &Trigger{delay: delay, fire: fire}
}

// Notify marks a run as pending and restarts the quiescence window.
func (tr *Trigger) Notify() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.stopped {
		return
	}
	tr.pending = true
	if tr.timer != nil {
		tr.timer.Stop()
	}
	tr.timer = time.AfterFunc(tr.delay, tr.onFire)
}

func (tr *Trigger) onFire() {
	tr.mu.Lock()
	if tr.stopped || !tr.pending {
		tr.mu.Unlock()
		return
	}
	tr.pending = false
	tr.mu.Unlock()

	// If a run is already active the callee drops the request; the next
	// append re-arms the debounce.
	tr.fire()
}

// Stop disarms the trigger permanently.
func (tr *Trigger) Stop() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.stopped = true
	tr.pending = false
	if tr.timer != nil {
		tr.timer.Stop()
	}
}
