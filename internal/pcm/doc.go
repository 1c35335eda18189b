// Package pcm decodes the raw audio fragments delivered by the music
// generation backend into playable sample buffers. Fragments are base64
// encoded, interleaved, signed 16-bit little endian PCM.
package pcm
