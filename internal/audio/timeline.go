package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/dgnsrekt/promptdj/internal/pcm"
)

type unit struct {
	env   *Envelope
	buf   *pcm.Buffer
	start int64
}

func (u *unit) end() int64 {
	return u.start + int64(u.buf.Frames())
}

// Timeline mixes scheduled buffers into interleaved 16-bit PCM. It implements
// io.Reader so a device can pull rendered audio from it, and its clock is
// the number of frames rendered so far. While suspended it renders silence
// and its clock stands still.
type Timeline struct {
	mu      sync.Mutex
	format  pcm.Format
	frame   int64
	running bool
	outputs map[*Envelope]struct{}
	current *Envelope
	units   []*unit
	level   float64

	gains []float64
	mix   []float64
}

// NewTimeline returns a suspended timeline rendering in format f.
func NewTimeline(f pcm.Format) *Timeline {
	return &Timeline{
		format:  f,
		outputs: make(map[*Envelope]struct{}),
	}
}

// Format returns the rendering format.
func (t *Timeline) Format() pcm.Format {
	return t.format
}

// Now returns the device time in seconds.
func (t *Timeline) Now() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.frame) / float64(t.format.SampleRate)
}

// Resume starts the clock.
func (t *Timeline) Resume() error {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
	return nil
}

// Connect routes env to the output. Buffers scheduled through an
// unconnected envelope are mixed at zero gain.
func (t *Timeline) Connect(env *Envelope) {
	t.mu.Lock()
	t.outputs[env] = struct{}{}
	t.current = env
	t.mu.Unlock()
}

// Schedule places buf on the timeline so that it starts at device time at.
func (t *Timeline) Schedule(env *Envelope, buf *pcm.Buffer, at float64) error {
	if env == nil {
		return fmt.Errorf("schedule: nil envelope")
	}
	if buf.Frames() == 0 {
		return fmt.Errorf("schedule: empty buffer")
	}
	if buf.Format.SampleRate != t.format.SampleRate {
		return fmt.Errorf("schedule: buffer rate %d does not match output rate %d",
			buf.Format.SampleRate, t.format.SampleRate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.units = append(t.units, &unit{
		env:   env,
		buf:   buf,
		start: int64(math.Round(at * float64(t.format.SampleRate))),
	})
	return nil
}

// Flush discards every scheduled buffer and disconnects all envelopes that
// have nothing left to play.
func (t *Timeline) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units = nil
	t.releaseIdle()
}

// Level returns the RMS level of the most recently rendered block.
func (t *Timeline) Level() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// Read renders the next len(p)/frameSize frames.
func (t *Timeline) Read(p []byte) (int, error) {
	fs := t.format.FrameSize()
	frames := len(p) / fs
	n := frames * fs
	if frames == 0 {
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		clear(p[:n])
		t.level = 0
		return n, nil
	}

	chans := t.format.Channels
	if cap(t.mix) < frames*chans {
		t.mix = make([]float64, frames*chans)
		t.gains = make([]float64, frames)
	}
	mix := t.mix[:frames*chans]
	gains := t.gains[:frames]
	clear(mix)

	rate := float64(t.format.SampleRate)
	from, to := t.frame, t.frame+int64(frames)
	live := t.units[:0]
	for _, u := range t.units {
		if u.end() > to {
			live = append(live, u)
		}
		if u.end() <= from || u.start >= to {
			continue
		}
		if _, ok := t.outputs[u.env]; !ok {
			continue
		}

		lo := max(u.start, from)
		hi := min(u.end(), to)
		g := gains[:hi-lo]
		u.env.fill(g, float64(lo)/rate, 1/rate)
		for f := lo; f < hi; f++ {
			gain := g[f-lo]
			src := f - u.start
			dst := int(f-from) * chans
			for ch := 0; ch < chans; ch++ {
				data := u.buf.Data[min(ch, len(u.buf.Data)-1)]
				mix[dst+ch] += float64(data[src]) * gain
			}
		}
	}
	clear(t.units[len(live):])
	t.units = live

	var sum float64
	for i, v := range mix {
		v = max(-1, min(1, v))
		sum += v * v
		binary.LittleEndian.PutUint16(p[i*2:], uint16(int16(v*32767)))
	}
	t.level = math.Sqrt(sum / float64(len(mix)))
	t.frame = to

	now := float64(t.frame) / rate
	for env := range t.outputs {
		env.prune(now)
	}
	t.releaseIdle()
	return n, nil
}

// releaseIdle disconnects envelopes that no longer carry any audio, except
// the one most recently connected.
func (t *Timeline) releaseIdle() {
	if len(t.outputs) <= 1 {
		return
	}
	busy := make(map[*Envelope]bool, len(t.units))
	for _, u := range t.units {
		busy[u.env] = true
	}
	for env := range t.outputs {
		if !busy[env] && env != t.current {
			delete(t.outputs, env)
		}
	}
}
