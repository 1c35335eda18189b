package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Buffer is decoded, playable audio: one float32 slice per channel with
// samples in [-1, 1).
type Buffer struct {
	Format Format
	Data   [][]float32
}

// Frames returns the number of frames held by the buffer.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length of the buffer in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.Format.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.Format.SampleRate)
}

// Decode turns a base64 fragment into raw little endian PCM bytes.
func Decode(fragment string) ([]byte, error) {
	if fragment == "" {
		return nil, ErrEmptyFragment
	}
	raw, err := base64.StdEncoding.DecodeString(fragment)
	if err != nil {
		return nil, fmt.Errorf("decode fragment: %w", err)
	}
	return raw, nil
}

// ToBuffer converts interleaved 16-bit PCM into a planar Buffer.
func ToBuffer(raw []byte, f Format) (*Buffer, error) {
	if err := ValidateData(raw, f); err != nil {
		return nil, err
	}
	frames := f.Frames(len(raw))
	buf := &Buffer{Format: f, Data: make([][]float32, f.Channels)}
	for ch := range buf.Data {
		buf.Data[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < f.Channels; ch++ {
			off := (i*f.Channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(raw[off:]))
			buf.Data[ch][i] = float32(s) / 32768
		}
	}
	return buf, nil
}

// Encode base64-encodes interleaved int16 samples, the inverse of Decode
// followed by ToBuffer.
func Encode(samples []int16) string {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}
