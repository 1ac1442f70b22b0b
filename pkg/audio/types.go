// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats and sample conversions
package audio

import "fmt"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// compressedByteRate is the assumed bitrate (320kbps) for buffer sizing of
// compressed streams
const compressedByteRate = 40000

// Format describes an audio stream.
// Zero SampleRate/Channels/BitDepth mean the stream header decides.
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
	BigEndian  bool
}

func (f Format) String() string {
	if f.SampleRate == 0 {
		return f.Codec
	}
	return fmt.Sprintf("%s %dHz/%dch/%dbit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
}

// ByteRate estimates how many stream bytes make up one second of audio
func (f Format) ByteRate() int {
	if f.Codec == "pcm" && f.SampleRate > 0 && f.Channels > 0 && f.BitDepth > 0 {
		return f.SampleRate * f.Channels * f.BitDepth / 8
	}
	return compressedByteRate
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFromInt8 converts an unsigned 8-bit pcm sample to the 24-bit range
func SampleFromInt8(sample uint8) int32 {
	return (int32(sample) - 128) << 16
}

// SampleFrom32Bit scales a 32-bit sample down to the 24-bit range
func SampleFrom32Bit(sample int32) int32 {
	return sample >> 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// Clamp24 limits a sample to the 24-bit range
func Clamp24(sample int64) int32 {
	if sample > Max24Bit {
		return Max24Bit
	}
	if sample < Min24Bit {
		return Min24Bit
	}
	return int32(sample)
}
