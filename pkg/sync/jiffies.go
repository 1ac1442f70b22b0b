// ABOUTME: Millisecond tick counter shared with the server
// ABOUTME: Wraps at 2^32 like the player firmware counter
package sync

import "time"

// Jiffies counts milliseconds since the process started
type Jiffies struct {
	start time.Time
	now   func() time.Time
}

// NewJiffies starts a counter at zero
func NewJiffies() *Jiffies {
	return &Jiffies{start: time.Now(), now: time.Now}
}

// Now returns the current tick, modulo 2^32
func (j *Jiffies) Now() uint32 {
	return uint32(j.now().Sub(j.start).Milliseconds())
}

// Until returns how long until the counter reaches target. Targets up to
// half the counter range in the past return a negative duration.
func (j *Jiffies) Until(target uint32) time.Duration {
	delta := int32(target - j.Now())
	return time.Duration(delta) * time.Millisecond
}
