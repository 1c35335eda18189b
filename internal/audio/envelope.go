package audio

import (
	"sort"
	"sync"
)

type automation int

const (
	setValue automation = iota
	linearRamp
)

type gainEvent struct {
	kind  automation
	value float64
	at    float64
}

// Envelope is a gain stage between scheduled buffers and the output. Its
// value is automated over device time: SetValueAt jumps to a value and
// LinearRampTo interpolates from the previous event to a target.
//
// An Envelope only produces sound once it has been connected to a device.
type Envelope struct {
	mu      sync.Mutex
	initial float64
	events  []gainEvent
}

// NewEnvelope returns an envelope holding value until automation says
// otherwise.
func NewEnvelope(value float64) *Envelope {
	return &Envelope{initial: value}
}

// SetValueAt jumps to value at device time at.
func (e *Envelope) SetValueAt(value, at float64) {
	e.insert(gainEvent{kind: setValue, value: value, at: at})
}

// LinearRampTo ramps linearly from the previous event so that value is
// reached at device time at.
func (e *Envelope) LinearRampTo(value, at float64) {
	e.insert(gainEvent{kind: linearRamp, value: value, at: at})
}

func (e *Envelope) insert(ev gainEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := sort.Search(len(e.events), func(i int) bool { return e.events[i].at > ev.at })
	e.events = append(e.events, gainEvent{})
	copy(e.events[i+1:], e.events[i:])
	e.events[i] = ev
}

// ValueAt returns the gain at device time t.
func (e *Envelope) ValueAt(t float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.valueAt(t)
}

func (e *Envelope) valueAt(t float64) float64 {
	cur, prevAt := e.initial, 0.0
	for _, ev := range e.events {
		if ev.at <= t {
			cur, prevAt = ev.value, ev.at
			continue
		}
		if ev.kind == linearRamp {
			if ev.at <= prevAt {
				return ev.value
			}
			frac := (t - prevAt) / (ev.at - prevAt)
			return cur + (ev.value-cur)*frac
		}
		break
	}
	return cur
}

// fill writes the gain for len(dst) consecutive frames starting at start.
func (e *Envelope) fill(dst []float64, start, step float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.events) == 0 {
		for i := range dst {
			dst[i] = e.initial
		}
		return
	}
	for i := range dst {
		dst[i] = e.valueAt(start + float64(i)*step)
	}
}

// prune drops automation that lies entirely before t.
func (e *Envelope) prune(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := -1
	for i, ev := range e.events {
		if ev.at > t {
			break
		}
		k = i
	}
	if k <= 0 {
		return
	}
	e.events = e.events[k:]
}
