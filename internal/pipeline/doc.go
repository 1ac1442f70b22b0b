// ABOUTME: Package pipeline connects a stream's RingBuffer to an audio engine
// ABOUTME: The Adapter is the seam; Local is the decode-and-play engine behind it

// Package pipeline forwards the bytes of the current stream session to an
// Engine and relays the engine's events back, tagged with the session id.
//
// The Adapter holds no buffering logic of its own. Local is the engine the
// player ships with: it decodes, resamples to the device rate and writes to
// an output.Output.
package pipeline
