package pcm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BitDepth is the only sample depth the backend produces.
const BitDepth = 16

// Format describes interleaved signed 16-bit little endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Stereo48K is the format of every fragment the music backend streams.
var Stereo48K = Format{SampleRate: 48000, Channels: 2}

// FrameSize returns the number of bytes in one frame (one sample for every
// channel).
func (f Format) FrameSize() int {
	return f.Channels * BitDepth / 8
}

// Validate checks that the format can be played by the output device.
func (f Format) Validate() error {
	if f.SampleRate != 44100 && f.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", f.Channels)
	}
	return nil
}

// Frames returns the number of whole frames in n bytes.
func (f Format) Frames(n int) int {
	if f.FrameSize() == 0 {
		return 0
	}
	return n / f.FrameSize()
}

// Duration returns how long n bytes of audio play for.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.Frames(n)) * time.Second / time.Duration(f.SampleRate)
}

// String renders the format the way the backend labels its chunks.
func (f Format) String() string {
	return fmt.Sprintf("audio/l16;rate=%d;channels=%d", f.SampleRate, f.Channels)
}

// ParseMIME parses a chunk MIME type such as
// "audio/l16;rate=48000;channels=2". Parameters that are missing keep the
// values of def.
func ParseMIME(mime string, def Format) (Format, error) {
	parts := strings.Split(mime, ";")
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "audio/l16") {
		return Format{}, fmt.Errorf("unsupported audio mime type %q", mime)
	}
	f := def
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Format{}, fmt.Errorf("invalid %s in mime type %q: %w", k, mime, err)
		}
		switch strings.ToLower(k) {
		case "rate":
			f.SampleRate = n
		case "channels":
			f.Channels = n
		}
	}
	return f, nil
}

var (
	// ErrEmptyFragment is returned for a fragment without any audio data.
	ErrEmptyFragment = errors.New("empty audio fragment")

	// ErrMisaligned is returned when the payload is not a whole number of
	// frames.
	ErrMisaligned = errors.New("audio fragment is not frame aligned")
)

// ValidateData checks that data holds a whole number of frames of f.
func ValidateData(data []byte, f Format) error {
	if len(data) == 0 {
		return ErrEmptyFragment
	}
	if len(data)%f.FrameSize() != 0 {
		return fmt.Errorf("%w: %d bytes, %d-byte frames", ErrMisaligned, len(data), f.FrameSize())
	}
	return nil
}
