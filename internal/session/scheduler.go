package session

import (
	"fmt"

	"github.com/dgnsrekt/promptdj/internal/audio"
	"github.com/dgnsrekt/promptdj/internal/pcm"
)

// Output is the device fragments are scheduled on.
type Output interface {
	Now() float64
	Resume() error
	Connect(env *audio.Envelope)
	Schedule(env *audio.Envelope, buf *pcm.Buffer, at float64) error
	Flush()
}

type outcome int

const (
	outcomeScheduled outcome = iota
	outcomeUnderrun
)

// placement describes what happened to one fragment.
type placement struct {
	outcome  outcome
	anchored bool
	start    float64
	duration float64
	bytes    int
}

type scheduler struct {
	clock  ScheduledClock
	format pcm.Format
	out    Output
}

func newScheduler(out Output, format pcm.Format, bufferTime float64) *scheduler {
	return &scheduler{
		clock:  ScheduledClock{BufferTime: bufferTime},
		format: format,
		out:    out,
	}
}

// schedule decodes chunk and places it gaplessly after the previous one.
// Decode and device errors leave the clock untouched.
func (s *scheduler) schedule(chunk string, mime string, env *audio.Envelope) (placement, error) {
	format := s.format
	if mime != "" {
		f, err := pcm.ParseMIME(mime, s.format)
		if err != nil {
			return placement{}, err
		}
		if err := f.Validate(); err != nil {
			return placement{}, err
		}
		format = f
	}

	raw, err := pcm.Decode(chunk)
	if err != nil {
		return placement{}, err
	}
	buf, err := pcm.ToBuffer(raw, format)
	if err != nil {
		return placement{}, err
	}

	now := s.out.Now()
	var p placement
	if !s.clock.Anchored() {
		s.clock.Anchor(now)
		p.anchored = true
	}
	if s.clock.Behind(now) {
		s.clock.Reset()
		return placement{outcome: outcomeUnderrun}, nil
	}

	if err := s.out.Schedule(env, buf, s.clock.NextStartTime); err != nil {
		if p.anchored {
			s.clock.Reset()
		}
		return placement{}, fmt.Errorf("schedule fragment: %w", err)
	}

	p.start = s.clock.NextStartTime
	p.duration = buf.Duration()
	p.bytes = len(raw)
	s.clock.Advance(p.duration)
	return p, nil
}
