// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Output interface and the oto implementation
// Package output provides audio playback backends.
//
// Oto is the device backend. It keeps one oto context for the life of the
// process and swaps players underneath it on Flush.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(44100, 2)
//	err = out.Write(samples)
package output
