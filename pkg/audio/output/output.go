// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends
package output

import (
	"errors"
	"time"
)

// ErrFlushed is returned by a Write interrupted by Flush or Close
var ErrFlushed = errors.New("output flushed")

// Output represents an audio output device
type Output interface {
	// Open initializes the device. Backends that cannot reopen keep their
	// first format; callers read Rate and Channels afterwards.
	Open(sampleRate, channels int) error

	// Rate and Channels report the format the device actually runs at
	Rate() int
	Channels() int

	// Write outputs interleaved 24-bit range samples, blocking until queued
	Write(samples []int32) error

	// Buffered returns how much written audio has not been heard yet
	Buffered() time.Duration

	// Pause and Resume halt and restart playback without dropping audio
	Pause()
	Resume()

	// Flush drops queued audio and releases a blocked Write
	Flush()

	// SetVolume sets the linear gain (1.0 = unity)
	SetVolume(volume float64)
	SetMuted(muted bool)

	// Close releases output resources
	Close() error
}
