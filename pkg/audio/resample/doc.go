// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts streams between sample rates chunk by chunk
// Package resample provides audio sample rate conversion.
//
// The engine uses it when a stream's rate differs from the rate the output
// device was opened at.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := make([]int32, r.MaxOutput(len(in)))
//	n := r.Resample(in, out)
package resample
