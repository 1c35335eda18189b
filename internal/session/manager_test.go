package session

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/dgnsrekt/promptdj/internal/lyria"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without a dialer")
	}
	if _, err := New(Options{Dialer: &fakeDialer{}}); err == nil {
		t.Error("expected error without an output")
	}
}

func TestPlayBuffersBeforePlaying(t *testing.T) {
	h := newHarness(t)
	h.m.SetWeightedPrompts(onePrompt())
	h.m.Play()
	h.settle()

	if got := h.events.States(); !reflect.DeepEqual(got, []State{StateLoading}) {
		t.Fatalf("expected [loading], got %v", got)
	}
	tr := h.dialer.Last()
	if tr == nil {
		t.Fatal("expected a connection")
	}
	if got := tr.Sent(); !reflect.DeepEqual(got, []string{"prompts", "play"}) {
		t.Errorf("expected prompts then play, got %v", got)
	}
	if got := tr.Prompts()[0]; !reflect.DeepEqual(got, []lyria.WeightedPrompt{{Text: "Bossa Nova", Weight: 1}}) {
		t.Errorf("unexpected prompts %v", got)
	}
	if h.dev.ResumeCount() != 1 {
		t.Errorf("expected output to be resumed once, got %d", h.dev.ResumeCount())
	}
	if !h.dev.IsConnected(h.m.env) {
		t.Error("expected the output envelope to be connected")
	}
	if g := h.m.env.ValueAt(0); g != 0 {
		t.Errorf("expected fade in to start at 0, got %v", g)
	}
	if g := h.m.env.ValueAt(0.1); g != 1 {
		t.Errorf("expected fade in to reach 1 after 100ms, got %v", g)
	}

	h.deliverAudio(4800)
	h.advance(DefaultBufferTime - time.Millisecond)
	if s := h.m.Status().State; s != StateLoading {
		t.Fatalf("expected loading before the buffer time, got %s", s)
	}
	h.advance(time.Millisecond)

	if got := h.events.States(); !reflect.DeepEqual(got, []State{StateLoading, StatePlaying}) {
		t.Fatalf("expected [loading playing], got %v", got)
	}
	st := h.m.Status()
	if st.SessionID == "" {
		t.Error("expected a session id")
	}
	if st.Scheduled != 1 {
		t.Errorf("expected 1 scheduled fragment, got %d", st.Scheduled)
	}
}

func TestSchedulingIsGapless(t *testing.T) {
	h := newHarness(t)
	h.m.SetWeightedPrompts(onePrompt())
	h.m.Play()
	h.settle()

	sizes := []int{4800, 9600, 2400, 48000, 4800}
	for i, frames := range sizes {
		h.dev.SetNow(float64(i) * 0.05)
		h.deliverAudio(frames)
	}

	scheduled := h.dev.Scheduled()
	if len(scheduled) != len(sizes) {
		t.Fatalf("expected %d scheduled buffers, got %d", len(sizes), len(scheduled))
	}
	if !approxEqual(scheduled[0].At, DefaultBufferTime.Seconds()) {
		t.Errorf("expected first buffer at %v, got %v", DefaultBufferTime.Seconds(), scheduled[0].At)
	}
	for i := 1; i < len(scheduled); i++ {
		prev := scheduled[i-1]
		want := prev.At + prev.Buffer.Duration()
		if !approxEqual(scheduled[i].At, want) {
			t.Errorf("buffer %d: expected start %v, got %v", i, want, scheduled[i].At)
		}
		if scheduled[i].At <= prev.At {
			t.Errorf("buffer %d: start times must increase", i)
		}
	}
}

func TestUnderrunRebuffers(t *testing.T) {
	h := newHarness(t)
	h.startPlaying(t)

	// The only fragment ends at 2.1s; the clock has moved past it.
	h.dev.SetNow(2.5)
	h.deliverAudio(4800)

	if s := h.m.Status().State; s != StateLoading {
		t.Fatalf("expected loading after underrun, got %s", s)
	}
	if n := len(h.dev.Scheduled()); n != 1 {
		t.Fatalf("expected the late fragment to be dropped, got %d scheduled", n)
	}
	st := h.m.Status()
	if st.NextStartTime != 0 {
		t.Errorf("expected clock reset, got %v", st.NextStartTime)
	}
	if st.Underruns != 1 {
		t.Errorf("expected 1 underrun, got %d", st.Underruns)
	}

	h.deliverAudio(4800)
	scheduled := h.dev.Scheduled()
	if len(scheduled) != 2 {
		t.Fatalf("expected the next fragment to be scheduled, got %d", len(scheduled))
	}
	if !approxEqual(scheduled[1].At, 2.5+DefaultBufferTime.Seconds()) {
		t.Errorf("expected re-anchor at now+bufferTime, got %v", scheduled[1].At)
	}

	h.advance(DefaultBufferTime)
	want := []State{StateLoading, StatePlaying, StateLoading, StatePlaying}
	if got := h.events.States(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPauseFadesAndReplacesEnvelope(t *testing.T) {
	h := newHarness(t)
	tr := h.startPlaying(t)
	old := h.m.env

	h.dev.SetNow(3)
	h.m.Pause()
	h.settle()

	if s := h.m.Status().State; s != StatePaused {
		t.Fatalf("expected paused, got %s", s)
	}
	if tr.count("pause") != 1 {
		t.Errorf("expected a pause command, got %v", tr.Sent())
	}
	if h.m.env == old {
		t.Fatal("expected a fresh envelope after pause")
	}
	if h.dev.IsConnected(h.m.env) {
		t.Error("fresh envelope must not be connected until play")
	}
	if g := old.ValueAt(3); g != 1 {
		t.Errorf("expected fade out to start at 1, got %v", g)
	}
	if g := old.ValueAt(3.1); g != 0 {
		t.Errorf("expected fade out to reach 0, got %v", g)
	}
	if st := h.m.Status(); st.NextStartTime != 0 {
		t.Errorf("expected clock reset, got %v", st.NextStartTime)
	}

	// fragments are dropped while paused
	h.deliverAudio(4800)
	if st := h.m.Status(); st.Dropped != 1 || st.Scheduled != 1 {
		t.Errorf("expected fragment dropped while paused, got %+v", st)
	}

	// resuming reuses the connection with the fresh envelope
	h.m.Play()
	h.settle()
	if h.dialer.Dials() != 1 {
		t.Errorf("expected the connection to be reused, got %d dials", h.dialer.Dials())
	}
	if !h.dev.IsConnected(h.m.env) {
		t.Error("expected the fresh envelope to be connected on play")
	}
}

func TestPauseAndStopAreIdempotent(t *testing.T) {
	h := newHarness(t)
	h.startPlaying(t)

	h.m.Pause()
	h.m.Pause()
	h.settle()
	h.m.Stop()
	h.m.Stop()
	h.settle()

	want := []State{StateLoading, StatePlaying, StatePaused, StateStopped}
	if got := h.events.States(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if len(h.events.Errors()) != 0 {
		t.Errorf("expected no errors, got %v", h.events.Errors())
	}
}

func TestStopDropsConnection(t *testing.T) {
	h := newHarness(t)
	tr := h.startPlaying(t)
	flushes := h.dev.FlushCount()

	h.m.Stop()
	h.settle()

	if tr.count("stop") != 1 {
		t.Errorf("expected a stop command, got %v", tr.Sent())
	}
	if !tr.Closed() {
		t.Error("expected the transport to be closed")
	}
	st := h.m.Status()
	if st.State != StateStopped || st.SessionID != "" {
		t.Errorf("expected stopped without a session, got %+v", st)
	}
	if h.dev.FlushCount() != flushes+1 {
		t.Error("expected the timeline to be flushed")
	}

	h.m.Play()
	h.settle()
	if h.dialer.Dials() != 2 {
		t.Errorf("expected play after stop to dial again, got %d dials", h.dialer.Dials())
	}
}

func TestStopWhileConnecting(t *testing.T) {
	h := newHarness(t)
	h.m.spawn = func(f func()) { go f() }
	block := make(chan struct{})
	h.dialer.block = block

	h.m.SetWeightedPrompts(onePrompt())
	h.m.Play()
	h.settle()
	h.m.Stop()
	h.settle()
	close(block)

	eventually(t, func() bool {
		h.settle()
		tr := h.dialer.Last()
		return tr != nil && tr.Closed()
	})
	h.settle()

	tr := h.dialer.Last()
	if n := len(tr.Sent()); n != 0 {
		t.Errorf("stale connection must not be used, got %v", tr.Sent())
	}
	if st := h.m.Status(); st.State != StateStopped || st.SessionID != "" {
		t.Errorf("expected stopped without a session, got %+v", st)
	}
}

func TestConcurrentPlaysShareOneDial(t *testing.T) {
	h := newHarness(t)
	h.m.spawn = func(f func()) { go f() }
	block := make(chan struct{})
	h.dialer.block = block

	h.m.SetWeightedPrompts(onePrompt())
	h.m.Play()
	h.m.Play()
	h.settle()
	close(block)

	eventually(t, func() bool {
		h.settle()
		return h.m.Status().SessionID != ""
	})
	time.Sleep(20 * time.Millisecond)
	h.settle()

	if n := h.dialer.Dials(); n != 1 {
		t.Errorf("expected one dial, got %d", n)
	}
}

func TestRepeatedPlayWhileConnectingSendsOnce(t *testing.T) {
	h := newHarness(t)
	h.m.spawn = func(f func()) { go f() }
	block := make(chan struct{})
	h.dialer.block = block

	h.m.SetWeightedPrompts(onePrompt())
	h.m.Play()
	h.settle()
	h.m.Play()
	h.settle()
	close(block)

	eventually(t, func() bool {
		h.settle()
		tr := h.dialer.Last()
		return tr != nil && tr.count("play") > 0
	})
	time.Sleep(20 * time.Millisecond)
	h.settle()

	tr := h.dialer.Last()
	if n := tr.count("play"); n != 1 {
		t.Errorf("expected one play, got %v", tr.Sent())
	}
	if n := tr.count("prompts"); n != 1 {
		t.Errorf("expected one prompt update, got %v", tr.Sent())
	}
	if st := h.m.Status(); st.State != StateLoading {
		t.Errorf("expected loading, got %v", st.State)
	}
}

func TestDisconnectStopsWithoutSending(t *testing.T) {
	h := newHarness(t)
	h.m.spawn = func(f func()) { go f() }
	tr := h.startPlayingAsync(t)
	first := h.m.Status().SessionID
	sent := len(tr.Sent())

	tr.in <- inbound{err: errors.New("socket closed")}
	eventually(t, func() bool {
		h.settle()
		return h.m.Status().State == StateStopped
	})

	if n := len(tr.Sent()); n != sent {
		t.Errorf("expected no messages after disconnect, got %v", tr.Sent()[sent:])
	}
	errs := h.events.Errors()
	if len(errs) != 1 || !errors.Is(errs[0], ErrConnectionLost) {
		t.Fatalf("expected one connection error, got %v", errs)
	}
	var serr *Error
	if !errors.As(errs[0], &serr) || !serr.IsFatal() {
		t.Errorf("expected a fatal transport error, got %#v", errs[0])
	}
	st := h.m.Status()
	if st.SessionID != "" || st.NextStartTime != 0 {
		t.Errorf("expected connection and clock cleared, got %+v", st)
	}
	if g := h.m.env.ValueAt(h.dev.Now() + 0.1); g != 1 {
		t.Errorf("expected gain restored to 1, got %v", g)
	}

	h.m.Play()
	eventually(t, func() bool {
		h.settle()
		return h.m.Status().SessionID != ""
	})
	if second := h.m.Status().SessionID; second == first {
		t.Errorf("expected a new session id, got %q twice", second)
	}
}

// startPlayingAsync is startPlaying for harnesses that dial in the
// background.
func (h *harness) startPlayingAsync(t *testing.T) *fakeTransport {
	t.Helper()
	h.m.SetWeightedPrompts(onePrompt())
	h.m.Play()
	eventually(t, func() bool {
		h.settle()
		return h.m.Status().SessionID != ""
	})
	h.deliverAudio(4800)
	h.advance(DefaultBufferTime)
	if s := h.m.Status().State; s != StatePlaying {
		t.Fatalf("expected playing, got %s", s)
	}
	return h.dialer.Last()
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.dialer.err = errBoom

	h.m.SetWeightedPrompts(onePrompt())
	h.m.Play()
	h.settle()

	if got := h.events.States(); !reflect.DeepEqual(got, []State{StateLoading, StateStopped}) {
		t.Errorf("expected [loading stopped], got %v", got)
	}
	errs := h.events.Errors()
	if len(errs) != 1 || !errors.Is(errs[0], errBoom) || !errors.Is(errs[0], ErrConnectionLost) {
		t.Errorf("expected one connection error wrapping the cause, got %v", errs)
	}
}

func TestPlayPause(t *testing.T) {
	h := newHarness(t)
	h.m.SetWeightedPrompts(onePrompt())

	h.m.PlayPause()
	h.settle()
	if s := h.m.Status().State; s != StateLoading {
		t.Fatalf("stopped: expected loading, got %s", s)
	}

	h.m.PlayPause()
	h.settle()
	if s := h.m.Status().State; s != StateStopped {
		t.Fatalf("loading: expected stopped, got %s", s)
	}

	h.startPlaying(t)
	h.m.PlayPause()
	h.settle()
	if s := h.m.Status().State; s != StatePaused {
		t.Fatalf("playing: expected paused, got %s", s)
	}

	h.m.PlayPause()
	h.settle()
	if s := h.m.Status().State; s != StateLoading {
		t.Fatalf("paused: expected loading, got %s", s)
	}
}

func TestPromptUpdatesAreThrottled(t *testing.T) {
	h := newHarness(t)
	tr := h.startPlaying(t)
	before := len(tr.Prompts())

	for i := 1; i <= 5; i++ {
		h.m.SetWeightedPrompts(Snapshot{"p1": {ID: "p1", Text: "Bossa Nova", Weight: float64(i) / 10}})
		h.settle()
		h.advance(30 * time.Millisecond)
	}
	if n := len(tr.Prompts()); n != before {
		t.Fatalf("expected no send inside the window, got %d", n-before)
	}

	h.advance(50 * time.Millisecond)
	prompts := tr.Prompts()
	if n := len(prompts); n != before+1 {
		t.Fatalf("expected exactly one send, got %d", n-before)
	}
	if got := prompts[len(prompts)-1][0].Weight; got != 0.5 {
		t.Errorf("expected the latest snapshot to win, got weight %v", got)
	}

	h.advance(time.Second)
	if n := len(tr.Prompts()); n != before+1 {
		t.Errorf("expected no trailing sends, got %d", n-before)
	}
}

func TestEmptyPromptsPause(t *testing.T) {
	zero := Snapshot{"p1": {ID: "p1", Text: "Bossa Nova", Weight: 0}}

	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness)
	}{
		{"stopped", func(t *testing.T, h *harness) {}},
		{"loading", func(t *testing.T, h *harness) {
			h.m.SetWeightedPrompts(onePrompt())
			h.m.Play()
			h.settle()
		}},
		{"playing", func(t *testing.T, h *harness) { h.startPlaying(t) }},
		{"paused", func(t *testing.T, h *harness) {
			h.startPlaying(t)
			h.m.Pause()
			h.settle()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(t, h)
			errsBefore := len(h.events.Errors())

			h.m.SetWeightedPrompts(zero)
			h.advance(DefaultPromptThrottle)

			if s := h.m.Status().State; s != StatePaused {
				t.Errorf("expected paused, got %s", s)
			}
			errs := h.events.Errors()[errsBefore:]
			if len(errs) != 1 || !errors.Is(errs[0], ErrNoActivePrompts) {
				t.Errorf("expected exactly one validation error, got %v", errs)
			}
		})
	}
}

func TestPromptSendFailurePauses(t *testing.T) {
	h := newHarness(t)
	tr := h.startPlaying(t)
	tr.mu.Lock()
	tr.failPrompts = errBoom
	tr.mu.Unlock()

	h.m.SetWeightedPrompts(Snapshot{"p1": {ID: "p1", Text: "Funk", Weight: 1}})
	h.advance(DefaultPromptThrottle)

	if s := h.m.Status().State; s != StatePaused {
		t.Errorf("expected paused, got %s", s)
	}
	errs := h.events.Errors()
	if len(errs) != 1 || !errors.Is(errs[0], ErrPromptUpdate) || !errors.Is(errs[0], errBoom) {
		t.Errorf("expected one prompt update error, got %v", errs)
	}
}

func TestBestEffortSendsNeverFail(t *testing.T) {
	h := newHarness(t)
	tr := h.startPlaying(t)
	tr.mu.Lock()
	tr.failSends = errBoom
	tr.mu.Unlock()

	h.m.Pause()
	h.settle()
	h.m.Stop()
	h.settle()

	if s := h.m.Status().State; s != StateStopped {
		t.Errorf("expected stopped, got %s", s)
	}
	if len(h.events.Errors()) != 0 {
		t.Errorf("send failures must not surface, got %v", h.events.Errors())
	}
}

func TestFilteredPromptsAreExcluded(t *testing.T) {
	h := newHarness(t)
	tr := h.startPlaying(t)

	h.deliver(&lyria.ServerMessage{FilteredPrompt: &lyria.FilteredPrompt{Text: "banned", FilteredReason: "policy"}})

	st := h.m.Status()
	if !reflect.DeepEqual(st.Filtered, []string{"banned"}) {
		t.Fatalf("expected banned to be filtered, got %v", st.Filtered)
	}
	if got := h.events.filtered; len(got) != 1 || got[0] != (FilteredPrompt{Text: "banned", Reason: "policy"}) {
		t.Errorf("unexpected filtered notifications %v", got)
	}

	h.m.SetWeightedPrompts(Snapshot{
		"p1": {ID: "p1", Text: "Bossa Nova", Weight: 1},
		"p2": {ID: "p2", Text: "banned", Weight: 2},
	})
	h.advance(DefaultPromptThrottle)

	prompts := tr.Prompts()
	last := prompts[len(prompts)-1]
	if !reflect.DeepEqual(last, []lyria.WeightedPrompt{{Text: "Bossa Nova", Weight: 1}}) {
		t.Errorf("expected banned prompt to be excluded, got %v", last)
	}

	// a new connection starts with an empty filtered set
	h.m.Stop()
	h.m.Play()
	h.settle()
	if st := h.m.Status(); len(st.Filtered) != 0 {
		t.Errorf("expected filtered set reset on reconnect, got %v", st.Filtered)
	}
}

func TestPromptsBeforePlayAreStored(t *testing.T) {
	h := newHarness(t)
	h.m.SetWeightedPrompts(onePrompt())
	h.advance(DefaultPromptThrottle)

	st := h.m.Status()
	if !reflect.DeepEqual(st.Prompts, onePrompt()) {
		t.Errorf("expected snapshot stored, got %v", st.Prompts)
	}
	if h.dialer.Dials() != 0 {
		t.Error("prompt updates must not connect")
	}
	if len(h.events.Errors()) != 0 || len(h.events.States()) != 0 {
		t.Errorf("expected no notifications, got states %v errors %v", h.events.States(), h.events.Errors())
	}

	h.m.Play()
	h.settle()
	if got := h.dialer.Last().Prompts(); len(got) != 1 {
		t.Errorf("expected stored prompts to be sent on play, got %v", got)
	}
}

func TestSetupCompleteVerifies(t *testing.T) {
	h := newHarness(t)
	h.startPlaying(t)
	if h.m.Status().Verified {
		t.Fatal("connection must start unverified")
	}
	h.deliver(&lyria.ServerMessage{SetupComplete: &struct{}{}})
	if !h.m.Status().Verified {
		t.Error("expected verified after setup complete")
	}
}

func TestBadFragmentIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.startPlaying(t)

	h.deliver(&lyria.ServerMessage{ServerContent: &lyria.ServerContent{
		AudioChunks: []lyria.AudioChunk{{Data: "%%%"}},
	}})

	st := h.m.Status()
	if st.State != StatePlaying || st.DecodeErrors != 1 {
		t.Errorf("expected playing with one decode error, got %+v", st)
	}
	if len(h.events.Errors()) != 0 {
		t.Errorf("decode errors must not surface, got %v", h.events.Errors())
	}
}

func TestOnlyFirstChunkIsScheduled(t *testing.T) {
	h := newHarness(t)
	h.startPlaying(t)
	msg := audioMessage(4800)
	msg.ServerContent.AudioChunks = append(msg.ServerContent.AudioChunks, msg.ServerContent.AudioChunks[0])

	h.deliver(msg)
	if n := len(h.dev.Scheduled()); n != 2 {
		t.Errorf("expected one more scheduled buffer, got %d total", n)
	}
}

func TestResetContext(t *testing.T) {
	h := newHarness(t)
	tr := h.startPlaying(t)

	h.m.ResetContext()
	h.settle()

	if tr.count("reset") != 1 {
		t.Errorf("expected a reset command, got %v", tr.Sent())
	}
	st := h.m.Status()
	if st.State != StateLoading || st.NextStartTime != 0 {
		t.Errorf("expected rebuffering after reset, got %+v", st)
	}
}

func TestMusicConfigSentOnConnect(t *testing.T) {
	bpm := 90
	h := newHarness(t, func(o *Options) {
		o.MusicConfig = &lyria.MusicGenerationConfig{BPM: &bpm}
	})
	tr := h.startPlaying(t)
	if got := tr.Sent(); got[0] != "config" {
		t.Errorf("expected config to be sent first, got %v", got)
	}
}

func TestRunShutsDown(t *testing.T) {
	h := newHarness(t)
	h.m.spawn = func(f func()) { go f() }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx) }()

	h.m.SetWeightedPrompts(onePrompt())
	h.m.Play()
	eventually(t, func() bool { return h.m.Status().SessionID != "" })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	tr := h.dialer.Last()
	if tr.count("stop") != 1 || !tr.Closed() {
		t.Errorf("expected stop and close on shutdown, got %v", tr.Sent())
	}
}

func TestUnparseableMimeTypeIsDecodeError(t *testing.T) {
	h := newHarness(t)
	h.startPlaying(t)
	before := len(h.dev.Scheduled())

	msg := audioMessage(4800)
	msg.ServerContent.AudioChunks[0].MimeType = "audio/ogg"
	h.deliver(msg)

	st := h.m.Status()
	if st.DecodeErrors != 1 || st.State != StatePlaying {
		t.Errorf("expected playing with one decode error, got %+v", st)
	}
	if n := len(h.dev.Scheduled()); n != before {
		t.Errorf("expected nothing new scheduled, got %d buffers", n-before)
	}
}
