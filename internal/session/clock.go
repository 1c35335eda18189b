package session

// ScheduledClock tracks where the next fragment starts on the output
// timeline. A NextStartTime of zero means the timeline is not anchored.
type ScheduledClock struct {
	NextStartTime float64
	BufferTime    float64
}

// Anchored reports whether a start time has been set.
func (c *ScheduledClock) Anchored() bool {
	return c.NextStartTime != 0
}

// Anchor places the timeline BufferTime ahead of now.
func (c *ScheduledClock) Anchor(now float64) {
	c.NextStartTime = now + c.BufferTime
}

// Behind reports whether the next start time has already passed.
func (c *ScheduledClock) Behind(now float64) bool {
	return c.NextStartTime < now
}

// Advance moves the start time past a buffer of d seconds.
func (c *ScheduledClock) Advance(d float64) {
	c.NextStartTime += d
}

// Reset un-anchors the timeline.
func (c *ScheduledClock) Reset() {
	c.NextStartTime = 0
}

// Lookahead returns how far the next start time lies ahead of now.
func (c *ScheduledClock) Lookahead(now float64) float64 {
	if !c.Anchored() || c.NextStartTime < now {
		return 0
	}
	return c.NextStartTime - now
}
