// ABOUTME: Streaming audio decoder package
// ABOUTME: Provides the Decoder interface and PCM/WAV, MP3, FLAC and Ogg Opus readers
// Package decode turns an encoded byte stream into interleaved int32 samples
// in the 24-bit range.
//
// Decoders pull from an io.Reader, so they can sit directly on the pipe fed
// by the stream buffer.
//
// Example:
//
//	dec, err := decode.New(audio.Format{Codec: "mp3"}, r)
//	format := dec.Format()
//	n, err := dec.Read(samples)
package decode
