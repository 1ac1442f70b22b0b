// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, the byte RingBuffer and sample conversion functions
// Package audio provides the audio types shared by the player:
//   - Format: describes a stream (codec, sample rate, channels, bit depth)
//   - RingBuffer: bounded byte ring between the data channel and the pipeline
//
// It also provides sample conversions between 16-bit, 24-bit and packed
// byte representations. Decoded samples are int32 in the 24-bit range.
//
// Example:
//
//	buf := audio.NewRingBuffer(audio.RingBufferConfig{
//	    Capacity:  2 * 1024 * 1024,
//	    Threshold: 64 * 1024,
//	    Session:   id,
//	})
//	n, err := buf.Write(ctx, id, chunk)
package audio
