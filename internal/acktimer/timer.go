// Package acktimer implements the resettable liveness timer that tracks
// whether the agent is working on a reply.
package acktimer

import (
	"sync"
	"time"
)

// DefaultTimeout bounds how long a session may look busy without a terminal frame.
const DefaultTimeout = 20 * time.Second

// Timer is a single-shot, resettable countdown. The pending flag is true
// exactly while a countdown is armed.
type Timer struct {
	timeout  time.Duration
	onChange func(pending bool)

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	armed  bool
	closed bool

	// notifyMu orders onChange calls; notified is the last value delivered.
	notifyMu sync.Mutex
	notified bool
}

// New creates a Timer. onChange, if non-nil, is called whenever the pending
// flag flips, one call at a time and always with the current value. It must
// not call Arm, Disarm or Close.
func New(timeout time.Duration, onChange func(pending bool)) *Timer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Timer{
		timeout:  timeout,
		onChange: onChange,
	}
}

// Arm starts the countdown, replacing any running one.
func (t *Timer) Arm() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.timeout, func() { t.expire(gen) })

	flipped := !t.armed
	t.armed = true
	t.mu.Unlock()

	if flipped {
		t.notify()
	}
}

// Disarm cancels the countdown and clears the pending flag immediately.
func (t *Timer) Disarm() {
	t.mu.Lock()
	flipped := t.disarmLocked()
	t.mu.Unlock()

	if flipped {
		t.notify()
	}
}

// Close disarms the timer for good; later Arm calls are ignored.
func (t *Timer) Close() {
	t.mu.Lock()
	t.closed = true
	flipped := t.disarmLocked()
	t.mu.Unlock()

	if flipped {
		t.notify()
	}
}

// Pending reports whether a countdown is armed.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (t *Timer) expire(gen uint64) {
	t.mu.Lock()
	// A newer Arm or a Disarm superseded this countdown.
	if gen != t.gen || !t.armed {
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.timer = nil
	t.mu.Unlock()

	t.notify()
}

func (t *Timer) disarmLocked() bool {
	t.stopLocked()
	t.gen++
	flipped := t.armed
	t.armed = false
	return flipped
}

func (t *Timer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// notify reports the current flag, so a late caller cannot publish a value
// that an earlier one already superseded.
func (t *Timer) notify() {
	if t.onChange == nil {
		return
	}

	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	pending := t.Pending()
	if pending == t.notified {
		return
	}
	t.notified = pending
	t.onChange(pending)
}
