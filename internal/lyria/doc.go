// Package lyria is a client for the realtime music generation service. It
// speaks the bidirectional JSON protocol over a websocket: weighted prompts,
// generation config and playback control go out, base64 PCM fragments and
// prompt filter notices come back.
package lyria
