package audio

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/promptdj/internal/pcm"
)

// OutputConfig contains configuration for the audio output.
type OutputConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
	BufferSize int // device buffer in bytes
}

// DefaultOutputConfig matches the format the music backend streams.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		SampleRate: pcm.Stereo48K.SampleRate,
		Channels:   pcm.Stereo48K.Channels,
		BitDepth:   pcm.BitDepth,
		BufferSize: 16384,
	}
}

func (c OutputConfig) format() pcm.Format {
	return pcm.Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

func validateConfig(config OutputConfig) error {
	if err := config.format().Validate(); err != nil {
		return err
	}
	if config.BitDepth != pcm.BitDepth {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	return nil
}
