package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/promptdj/internal/audio"
	"github.com/dgnsrekt/promptdj/internal/lyria"
	"github.com/dgnsrekt/promptdj/internal/metrics"
	"github.com/dgnsrekt/promptdj/internal/pcm"
)

const (
	DefaultBufferTime     = 2 * time.Second
	DefaultFadeTime       = 100 * time.Millisecond
	DefaultPromptThrottle = 200 * time.Millisecond
	DefaultConnectTimeout = 30 * time.Second

	connectKey = "connect"
)

// Options configures a Manager. Dialer and Output are required.
type Options struct {
	Dialer   Dialer
	Output   Output
	Listener Listener

	// Format is the format fragments are decoded with when their MIME
	// type does not say otherwise.
	Format pcm.Format

	BufferTime     time.Duration
	FadeTime       time.Duration
	PromptThrottle time.Duration
	ConnectTimeout time.Duration

	// MusicConfig is sent on every new connection when set.
	MusicConfig *lyria.MusicGenerationConfig

	Clock   Clock
	Metrics *metrics.Recorder
	Logger  *log.Logger
}

// Status is a point-in-time view of the manager.
type Status struct {
	State         State
	SessionID     string
	Verified      bool
	Filtered      []string
	Prompts       Snapshot
	NextStartTime float64
	Scheduled     int64
	Dropped       int64
	Underruns     int64
	DecodeErrors  int64
	BytesReceived int64
	LastError     error
}

type connection struct {
	id       string
	t        Transport
	verified bool
	filtered FilteredSet
}

type counters struct {
	scheduled    int64
	dropped      int64
	underruns    int64
	decodeErrors int64
}

// Manager runs a playback session. Create one with New, start it with Run
// and drive it from any goroutine.
type Manager struct {
	opts   Options
	out    Output
	logger *log.Logger
	loop   *loop
	group  singleflight.Group
	status atomic.Pointer[Status]

	// spawn starts background work; tests replace it.
	spawn func(func())

	// Everything below is owned by the loop goroutine.
	ctx       context.Context
	sm        *StateMachine
	sched     *scheduler
	env       *audio.Envelope
	conn      *connection
	dialing   bool
	epoch     uint64
	snapshot  Snapshot
	throttle  *throttle
	anchor    Timer
	anchorGen uint64
	stats     counters
	lastErr   error

	decodeLog   rate.Sometimes
	underrunLog rate.Sometimes
}

// New creates a stopped manager.
func New(opts Options) (*Manager, error) {
	if opts.Dialer == nil {
		return nil, errors.New("dialer cannot be nil")
	}
	if opts.Output == nil {
		return nil, errors.New("output cannot be nil")
	}
	if opts.Format == (pcm.Format{}) {
		opts.Format = pcm.Stereo48K
	}
	if err := opts.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format: %w", err)
	}
	if opts.BufferTime <= 0 {
		opts.BufferTime = DefaultBufferTime
	}
	if opts.FadeTime <= 0 {
		opts.FadeTime = DefaultFadeTime
	}
	if opts.PromptThrottle <= 0 {
		opts.PromptThrottle = DefaultPromptThrottle
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	if opts.Listener == nil {
		opts.Listener = ListenerFuncs{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("session")
	}

	m := &Manager{
		opts:        opts,
		out:         opts.Output,
		logger:      opts.Logger,
		loop:        newLoop(),
		spawn:       func(f func()) { go f() },
		ctx:         context.Background(),
		sm:          NewStateMachine(),
		sched:       newScheduler(opts.Output, opts.Format, opts.BufferTime.Seconds()),
		env:         audio.NewEnvelope(1),
		snapshot:    Snapshot{},
		decodeLog:   rate.Sometimes{First: 3, Interval: 10 * time.Second},
		underrunLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	m.throttle = &throttle{
		window: opts.PromptThrottle,
		clock:  opts.Clock,
		post:   m.loop.post,
		apply:  func(s Snapshot) { m.applyPrompts(s) },
	}
	m.loop.after = m.publish
	m.publish()
	return m, nil
}

// Run processes commands and events until ctx is done, then tears the
// session down.
func (m *Manager) Run(ctx context.Context) error {
	m.ctx = ctx
	err := m.loop.run(ctx)
	m.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Play starts playback, connecting first if needed.
func (m *Manager) Play() { m.loop.post(m.play) }

// Pause pauses playback and keeps the connection.
func (m *Manager) Pause() { m.loop.post(m.pause) }

// Stop stops playback and drops the connection.
func (m *Manager) Stop() { m.loop.post(m.stop) }

// PlayPause toggles playback. A session stuck loading is stopped.
func (m *Manager) PlayPause() { m.loop.post(m.playPause) }

// ResetContext asks the service to forget what it has generated so far.
func (m *Manager) ResetContext() { m.loop.post(m.resetContext) }

// SetWeightedPrompts replaces the prompt set. Updates are throttled; only
// the latest snapshot in a window is applied.
func (m *Manager) SetWeightedPrompts(s Snapshot) {
	s = s.Clone()
	m.loop.post(func() { m.throttle.submit(s) })
}

// Status returns the state as of the last processed event.
func (m *Manager) Status() Status {
	return *m.status.Load()
}

func (m *Manager) play() {
	m.transition(StateLoading)
	m.acquire(m.startPlayback)
}

func (m *Manager) pause() {
	if m.conn != nil {
		m.logSend("pause", m.conn.t.Pause())
	}
	m.transition(StatePaused)

	now := m.out.Now()
	fade := m.opts.FadeTime.Seconds()
	m.env.SetValueAt(1, now)
	m.env.LinearRampTo(0, now+fade)
	m.env = audio.NewEnvelope(1)

	m.sched.clock.Reset()
	m.cancelAnchor()
}

func (m *Manager) stop() {
	if m.conn != nil {
		m.logSend("stop", m.conn.t.Stop())
	}
	m.transition(StateStopped)
	m.teardown()
}

func (m *Manager) playPause() {
	switch m.sm.Current() {
	case StatePlaying:
		m.pause()
	case StatePaused, StateStopped:
		m.play()
	case StateLoading:
		m.stop()
	}
}

func (m *Manager) resetContext() {
	if m.conn == nil {
		return
	}
	m.logSend("reset context", m.conn.t.ResetContext())
	m.out.Flush()
	m.sched.clock.Reset()
	m.cancelAnchor()
	if m.sm.Current() == StatePlaying {
		m.transition(StateLoading)
	}
}

// startPlayback continues play once a connection is available.
func (m *Manager) startPlayback(c *connection) {
	if m.sm.Current() != StateLoading {
		m.logger.Debug("Play superseded", "state", m.sm.Current())
		return
	}
	if !m.flushPrompts() {
		return
	}
	if err := m.out.Resume(); err != nil {
		m.logger.Warn("Failed to resume output", "error", err)
	}
	m.logSend("play", c.t.Play())

	m.out.Connect(m.env)
	now := m.out.Now()
	m.env.SetValueAt(0, now)
	m.env.LinearRampTo(1, now+m.opts.FadeTime.Seconds())
}

// acquire hands the current connection to then, dialing if there is none.
// While a dial is in flight only its continuation runs; results from a torn
// down session are discarded.
func (m *Manager) acquire(then func(*connection)) {
	if m.conn != nil {
		then(m.conn)
		return
	}
	if m.dialing {
		m.logger.Debug("Connect already in flight")
		return
	}

	m.dialing = true
	epoch := m.epoch
	ctx := m.ctx
	ch := m.group.DoChan(connectKey, func() (any, error) {
		return m.dial(ctx)
	})
	m.spawn(func() {
		res := <-ch
		m.loop.post(func() { m.connected(epoch, res, then) })
	})
}

func (m *Manager) dial(ctx context.Context) (*connection, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	t, err := m.opts.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &connection{id: uuid.NewString(), t: t, filtered: FilteredSet{}}, nil
}

func (m *Manager) connected(epoch uint64, res singleflight.Result, then func(*connection)) {
	if res.Err != nil {
		if epoch != m.epoch {
			m.logger.Debug("Ignoring failed connect from a previous session", "error", res.Err)
			return
		}
		m.opts.Metrics.Connect(m.ctx, false)
		m.logger.Error("Connect failed", "error", res.Err)
		m.transition(StateStopped)
		m.teardown()
		m.report(newError(KindTransport, ErrConnectionLost, res.Err))
		return
	}

	c := res.Val.(*connection)
	if epoch != m.epoch {
		if c != m.conn {
			m.logger.Debug("Closing connection from a previous session", "session", c.id)
			_ = c.t.Close()
		}
		return
	}
	m.dialing = false
	m.install(c)
	then(c)
}

func (m *Manager) install(c *connection) {
	m.conn = c
	m.opts.Metrics.Connect(m.ctx, true)
	m.logger.Info("Connected", "session", c.id)

	if cfg := m.opts.MusicConfig; cfg != nil {
		m.logSend("music config", c.t.SetMusicGenerationConfig(cfg))
	}
	go m.read(c)
}

// read forwards inbound messages to the loop until the transport ends.
func (m *Manager) read(c *connection) {
	for msg, err := range c.t.Messages() {
		if err != nil {
			m.loop.post(func() { m.disconnected(c, err) })
			return
		}
		m.loop.post(func() { m.receive(c, msg) })
	}
	m.loop.post(func() { m.disconnected(c, io.EOF) })
}

func (m *Manager) receive(c *connection, msg *lyria.ServerMessage) {
	if c != m.conn {
		return
	}
	if msg.SetupComplete != nil {
		c.verified = true
		m.logger.Debug("Setup complete", "session", c.id)
	}
	if fp := msg.FilteredPrompt; fp != nil {
		c.filtered.Add(fp.Text)
		m.logger.Warn("Prompt filtered", "text", fp.Text, "reason", fp.FilteredReason)
		m.opts.Listener.PromptFiltered(FilteredPrompt{Text: fp.Text, Reason: fp.FilteredReason})
	}
	if msg.Warning != "" {
		m.logger.Warn("Service warning", "warning", msg.Warning)
	}
	if sc := msg.ServerContent; sc != nil && len(sc.AudioChunks) > 0 {
		if n := len(sc.AudioChunks); n > 1 {
			m.logger.Debug("Ignoring extra chunks in batch", "count", n-1)
		}
		m.fragment(sc.AudioChunks[0])
	}
}

func (m *Manager) fragment(chunk lyria.AudioChunk) {
	state := m.sm.Current()
	if state == StatePaused || state == StateStopped {
		m.stats.dropped++
		m.opts.Metrics.Fragment(m.ctx, metrics.FragmentDropped)
		return
	}

	p, err := m.sched.schedule(chunk.Data, chunk.MimeType, m.env)
	if err != nil {
		m.stats.decodeErrors++
		m.opts.Metrics.Fragment(m.ctx, metrics.FragmentDecodeError)
		m.decodeLog.Do(func() {
			m.logger.Warn("Dropping fragment", "error", newError(KindDecode, err, nil).Detail())
		})
		return
	}

	if p.outcome == outcomeUnderrun {
		m.stats.underruns++
		m.opts.Metrics.Fragment(m.ctx, metrics.FragmentUnderrun)
		m.underrunLog.Do(func() {
			m.logger.Warn("Playback underrun, rebuffering", "state", state)
		})
		m.cancelAnchor()
		m.transition(StateLoading)
		return
	}

	m.stats.scheduled++
	m.opts.Metrics.Scheduled(m.ctx, p.bytes, p.start-m.out.Now())
	if p.anchored {
		m.armAnchor()
	}
}

// armAnchor moves to playing once BufferTime of audio has had time to
// accumulate.
func (m *Manager) armAnchor() {
	m.cancelAnchor()
	gen := m.anchorGen
	m.anchor = m.opts.Clock.AfterFunc(m.opts.BufferTime, func() {
		m.loop.post(func() {
			if gen != m.anchorGen {
				return
			}
			m.anchor = nil
			if m.sm.Current() == StateLoading {
				m.transition(StatePlaying)
			}
		})
	})
}

func (m *Manager) cancelAnchor() {
	m.anchorGen++
	if m.anchor != nil {
		m.anchor.Stop()
		m.anchor = nil
	}
}

func (m *Manager) disconnected(c *connection, err error) {
	if c != m.conn {
		return
	}
	m.logger.Error("Connection lost", "session", c.id, "error", err)
	m.transition(StateStopped)
	m.teardown()
	m.report(newError(KindTransport, ErrConnectionLost, err))
}

// teardown restores default gain, clears the timeline and drops the
// connection along with any dial in flight. It never sends control
// messages.
func (m *Manager) teardown() {
	now := m.out.Now()
	m.env.SetValueAt(0, now)
	m.env.LinearRampTo(1, now+m.opts.FadeTime.Seconds())
	m.out.Flush()

	m.sched.clock.Reset()
	m.cancelAnchor()

	if c := m.conn; c != nil {
		m.conn = nil
		if err := c.t.Close(); err != nil {
			m.logger.Debug("Close failed", "session", c.id, "error", err)
		}
	}
	m.dialing = false
	m.epoch++
	m.group.Forget(connectKey)
}

// flushPrompts applies the pending snapshot, or re-applies the current one,
// without waiting for the throttle window.
func (m *Manager) flushPrompts() bool {
	s, ok := m.throttle.take()
	if !ok {
		s = m.snapshot
	}
	return m.applyPrompts(s)
}

func (m *Manager) applyPrompts(s Snapshot) bool {
	m.snapshot = s

	var filtered FilteredSet
	if m.conn != nil {
		filtered = m.conn.filtered
	}
	active := ActivePrompts(s, filtered)
	if len(active) == 0 {
		m.report(newError(KindValidation, ErrNoActivePrompts, nil))
		m.pause()
		return false
	}
	if m.conn == nil {
		return true
	}
	if err := m.conn.t.SetWeightedPrompts(active); err != nil {
		m.logger.Warn("Failed to send prompts", "session", m.conn.id, "error", err)
		m.report(newError(KindTransport, ErrPromptUpdate, err))
		m.pause()
		return false
	}
	m.logger.Debug("Prompts sent", "session", m.conn.id, "active", len(active))
	return true
}

func (m *Manager) transition(to State) {
	from := m.sm.Current()
	if from == to {
		return
	}
	if !m.sm.Transition(to) {
		m.logger.Warn("Invalid state transition", "from", from, "to", to)
		return
	}
	m.logger.Debug("State changed", "from", from, "to", to)
	m.opts.Metrics.Transition(m.ctx, to.String())
	m.opts.Listener.StateChanged(to)
}

func (m *Manager) report(err error) {
	m.lastErr = err
	m.opts.Listener.ErrorOccurred(err)
}

func (m *Manager) logSend(what string, err error) {
	if err != nil {
		m.logger.Warn("Send failed", "message", what, "error", err)
	}
}

func (m *Manager) shutdown() {
	m.throttle.cancel()
	m.cancelAnchor()
	if c := m.conn; c != nil {
		m.logSend("stop", c.t.Stop())
		m.conn = nil
		_ = c.t.Close()
	}
	m.dialing = false
	m.epoch++
	m.group.Forget(connectKey)
	m.publish()
}

func (m *Manager) publish() {
	st := &Status{
		State:         m.sm.Current(),
		Prompts:       m.snapshot.Clone(),
		NextStartTime: m.sched.clock.NextStartTime,
		Scheduled:     m.stats.scheduled,
		Dropped:       m.stats.dropped,
		Underruns:     m.stats.underruns,
		DecodeErrors:  m.stats.decodeErrors,
		LastError:     m.lastErr,
	}
	if c := m.conn; c != nil {
		st.SessionID = c.id
		st.Verified = c.verified
		st.Filtered = c.filtered.List()
		st.BytesReceived = c.t.BytesReceived()
	}
	m.status.Store(st)
}
