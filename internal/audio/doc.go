// Package audio provides the output side of playback: gain envelopes, a
// sample-accurate timeline that buffers are scheduled onto, and devices that
// render that timeline through oto/v3 or a silent realtime clock.
package audio
