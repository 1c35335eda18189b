package session

import "time"

// throttle collapses prompt updates: the first update in a quiet period
// opens a window, later ones overwrite it, and only the latest snapshot is
// applied when the window closes. It is owned by the manager goroutine.
type throttle struct {
	window time.Duration
	clock  Clock
	post   func(func()) bool
	apply  func(Snapshot)

	pending Snapshot
	has     bool
	timer   Timer
	gen     uint64
}

func (t *throttle) submit(s Snapshot) {
	t.pending = s
	t.has = true
	if t.timer != nil {
		return
	}
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.window, func() {
		t.post(func() { t.fire(gen) })
	})
}

func (t *throttle) fire(gen uint64) {
	if gen != t.gen {
		return
	}
	t.timer = nil
	if !t.has {
		return
	}
	s := t.pending
	t.pending, t.has = nil, false
	t.apply(s)
}

// take returns the pending snapshot, if any, and closes the window.
func (t *throttle) take() (Snapshot, bool) {
	s, ok := t.pending, t.has
	t.cancel()
	return s, ok
}

func (t *throttle) cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.pending, t.has = nil, false
}
