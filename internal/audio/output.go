//go:build !nocgo

package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// Output plays a Timeline through the system audio device. oto pulls frames
// from the timeline on its own goroutine, so the timeline clock runs ahead
// of what is audible by roughly the device buffer.
type Output struct {
	*Timeline

	context *oto.Context
	player  *oto.Player

	mu     sync.Mutex
	closed bool
}

// NewOutput opens the audio device. oto allows a single context per
// process, so only one Output may exist at a time.
func NewOutput(config OutputConfig) (*Output, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate*config.Channels*2),
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	tl := NewTimeline(config.format())
	player := ctx.NewPlayer(tl)
	if player == nil {
		return nil, errors.New("failed to create oto player")
	}
	player.Play()

	log.Debug("Audio output opened",
		"sample_rate", config.SampleRate,
		"channels", config.Channels,
		"buffer", op.BufferSize)

	return &Output{Timeline: tl, context: ctx, player: player}, nil
}

// Resume starts the device and the timeline clock.
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("output is closed")
	}
	if err := o.context.Resume(); err != nil {
		return fmt.Errorf("resume audio device: %w", err)
	}
	return o.Timeline.Resume()
}

// Close stops rendering and releases the player.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.Timeline.Flush()
	o.player.Pause()
	return o.player.Close()
}
