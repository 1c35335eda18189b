package audio

import (
	"errors"
	"sync"

	"github.com/dgnsrekt/promptdj/internal/pcm"
)

// ScheduledBuffer records a single FakeDevice.Schedule call.
type ScheduledBuffer struct {
	Envelope *Envelope
	Buffer   *pcm.Buffer
	At       float64
}

// FakeDevice is a Device for tests. Its clock only moves when told to and
// it records everything scheduled on it.
type FakeDevice struct {
	mu        sync.Mutex
	now       float64
	resumes   int
	flushes   int
	connected []*Envelope
	scheduled []ScheduledBuffer
	closed    bool

	// ScheduleErr, when set, is returned from Schedule.
	ScheduleErr error
}

// NewFakeDevice returns a fake device with its clock at zero.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{}
}

// SetNow moves the clock to t.
func (d *FakeDevice) SetNow(t float64) {
	d.mu.Lock()
	d.now = t
	d.mu.Unlock()
}

// Advance moves the clock forward by dt seconds.
func (d *FakeDevice) Advance(dt float64) {
	d.mu.Lock()
	d.now += dt
	d.mu.Unlock()
}

func (d *FakeDevice) Now() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

func (d *FakeDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("device is closed")
	}
	d.resumes++
	return nil
}

func (d *FakeDevice) Connect(env *Envelope) {
	d.mu.Lock()
	d.connected = append(d.connected, env)
	d.mu.Unlock()
}

func (d *FakeDevice) Schedule(env *Envelope, buf *pcm.Buffer, at float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ScheduleErr != nil {
		return d.ScheduleErr
	}
	d.scheduled = append(d.scheduled, ScheduledBuffer{Envelope: env, Buffer: buf, At: at})
	return nil
}

func (d *FakeDevice) Flush() {
	d.mu.Lock()
	d.flushes++
	d.mu.Unlock()
}

func (d *FakeDevice) Level() float64 { return 0 }

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Scheduled returns a copy of every Schedule call so far.
func (d *FakeDevice) Scheduled() []ScheduledBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ScheduledBuffer(nil), d.scheduled...)
}

// IsConnected reports whether env was ever connected.
func (d *FakeDevice) IsConnected(env *Envelope) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.connected {
		if c == env {
			return true
		}
	}
	return false
}

// ResumeCount returns how many times Resume succeeded.
func (d *FakeDevice) ResumeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resumes
}

// FlushCount returns how many times Flush was called.
func (d *FakeDevice) FlushCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}
