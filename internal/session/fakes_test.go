package session

import (
	"context"
	"errors"
	"iter"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/promptdj/internal/audio"
	"github.com/dgnsrekt/promptdj/internal/lyria"
	"github.com/dgnsrekt/promptdj/internal/pcm"
)

type inbound struct {
	msg *lyria.ServerMessage
	err error
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []string
	prompts [][]lyria.WeightedPrompt
	closes  int

	failPrompts error
	failSends   error

	in        chan inbound
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan inbound, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) record(what string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, what)
	return f.failSends
}

func (f *fakeTransport) Play() error         { return f.record("play") }
func (f *fakeTransport) Pause() error        { return f.record("pause") }
func (f *fakeTransport) Stop() error         { return f.record("stop") }
func (f *fakeTransport) ResetContext() error { return f.record("reset") }

func (f *fakeTransport) SetMusicGenerationConfig(*lyria.MusicGenerationConfig) error {
	return f.record("config")
}

func (f *fakeTransport) SetWeightedPrompts(p []lyria.WeightedPrompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrompts != nil {
		return f.failPrompts
	}
	f.sent = append(f.sent, "prompts")
	f.prompts = append(f.prompts, p)
	return nil
}

func (f *fakeTransport) Messages() iter.Seq2[*lyria.ServerMessage, error] {
	return func(yield func(*lyria.ServerMessage, error) bool) {
		for {
			select {
			case <-f.closed:
				return
			case item := <-f.in:
				if !yield(item.msg, item.err) || item.err != nil {
					return
				}
			}
		}
	}
}

func (f *fakeTransport) BytesReceived() int64 { return 0 }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) Prompts() [][]lyria.WeightedPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]lyria.WeightedPrompt(nil), f.prompts...)
}

func (f *fakeTransport) Closed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) count(what string) int {
	n := 0
	for _, s := range f.Sent() {
		if s == what {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
	block      chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context) (Transport, error) {
	d.mu.Lock()
	block, err := d.block, d.err
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	t := newFakeTransport()
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) Last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

type fakeTimer struct {
	c    *fakeClock
	at   time.Duration
	f    func()
	done bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.done && t.at <= c.now {
			t.done = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

type recorder struct {
	mu       sync.Mutex
	states   []State
	errs     []error
	filtered []FilteredPrompt
}

func (r *recorder) StateChanged(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) ErrorOccurred(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) PromptFiltered(p FilteredPrompt) {
	r.mu.Lock()
	r.filtered = append(r.filtered, p)
	r.mu.Unlock()
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type harness struct {
	m      *Manager
	dev    *audio.FakeDevice
	dialer *fakeDialer
	clock  *fakeClock
	events *recorder
}

func newHarness(t *testing.T, configure ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		dev:    audio.NewFakeDevice(),
		dialer: &fakeDialer{},
		clock:  &fakeClock{},
		events: &recorder{},
	}
	logger := log.New(testWriter{t})
	logger.SetLevel(log.DebugLevel)
	opts := Options{
		Dialer:   h.dialer,
		Output:   h.dev,
		Listener: h.events,
		Clock:    h.clock,
		Logger:   logger,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	m, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.spawn = func(f func()) { f() }
	h.m = m
	return h
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// settle runs everything queued on the manager.
func (h *harness) settle() {
	h.m.loop.drain()
}

// advance drains posted work so timers it arms see the current time, then
// moves the clock.
func (h *harness) advance(d time.Duration) {
	h.settle()
	h.clock.Advance(d)
	h.settle()
}

// deliver hands msg to the manager as if it came from the current
// connection.
func (h *harness) deliver(msg *lyria.ServerMessage) {
	h.m.loop.post(func() { h.m.receive(h.m.conn, msg) })
	h.settle()
}

func (h *harness) deliverAudio(frames int) {
	h.deliver(audioMessage(frames))
}

func audioMessage(frames int) *lyria.ServerMessage {
	return &lyria.ServerMessage{ServerContent: &lyria.ServerContent{
		AudioChunks: []lyria.AudioChunk{{
			Data:     pcm.Encode(make([]int16, frames*2)),
			MimeType: "audio/l16;rate=48000;channels=2",
		}},
	}}
}

func onePrompt() Snapshot {
	return Snapshot{"p1": {ID: "p1", Text: "Bossa Nova", Weight: 1}}
}

// startPlaying drives the harness into StatePlaying with one fragment
// scheduled.
func (h *harness) startPlaying(t *testing.T) *fakeTransport {
	t.Helper()
	h.m.SetWeightedPrompts(onePrompt())
	h.m.Play()
	h.settle()
	h.deliverAudio(4800)
	h.advance(DefaultBufferTime)
	if s := h.m.Status().State; s != StatePlaying {
		t.Fatalf("expected playing, got %s", s)
	}
	return h.dialer.Last()
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

var errBoom = errors.New("boom")
