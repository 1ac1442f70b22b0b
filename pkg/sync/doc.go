// ABOUTME: Playback clock package
// ABOUTME: Smoothed stream-position tracking for multi-device sync
// Package sync tracks the playback position of the current stream against
// the local monotonic clock.
//
// Position samples from the pipeline are folded in with a fixed-gain
// correction (offset plus drift) instead of being assigned directly, so the
// reported position never steps.
//
// Example:
//
//	clock := sync.NewClock()
//	clock.Start(0)
//	clock.Advance(reportedElapsed)
//	pos := clock.Position()
package sync
