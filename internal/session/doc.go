// Package session manages a streaming playback session: it owns the
// connection to the music service, schedules arriving audio on a lookahead
// timeline, drives the stopped/loading/playing/paused state machine and
// forwards throttled prompt updates.
//
// All state is owned by a single goroutine. Public methods enqueue work for
// it and return immediately; observers learn about progress through a
// Listener.
package session
