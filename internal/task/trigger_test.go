package task

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTriggerCoalescesNotifies(t *testing.T) {
	var fires atomic.Int64
	tr := NewTrigger(30*time.Millisecond, func() { fires.Add(1) })
	defer tr.Stop()

	for i := 0; i < 5; i++ {
		tr.Notify()
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, time.Second, "debounced fire", func() bool { return fires.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := fires.Load(); n != 1 {
		t.Fatalf("expected exactly one fire, got %d", n)
	}
}

func TestTriggerFiresAgainAfterNewNotify(t *testing.T) {
	var fires atomic.Int64
	tr := NewTrigger(10*time.Millisecond, func() { fires.Add(1) })
	defer tr.Stop()

	tr.Notify()
	waitFor(t, time.Second, "first fire", func() bool { return fires.Load() == 1 })

	tr.Notify()
	waitFor(t, time.Second, "second fire", func() bool { return fires.Load() == 2 })
}

func TestTriggerStopPreventsFire(t *testing.T) {
	var fires atomic.Int64
	tr := NewTrigger(10*time.Millisecond, func() { fires.Add(1) })

	tr.Notify()
	tr.Stop()
	time.Sleep(40 * time.Millisecond)
	if n := fires.Load(); n != 0 {
		t.Fatalf("stopped trigger fired %d times", n)
	}

	tr.Notify() // no-op after stop
	time.Sleep(40 * time.Millisecond)
	if n := fires.Load(); n != 0 {
		t.Fatalf("notify after stop fired %d times", n)
	}
}
