// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion functions and format helpers
package audio

import "testing"

func TestSampleConversions(t *testing.T) {
	tests := []struct {
		name     string
		got      int32
		expected int32
	}{
		{"int16 zero", SampleFromInt16(0), 0},
		{"int16 positive", SampleFromInt16(100), 100 << 8},
		{"int16 min", SampleFromInt16(-32768), -32768 << 8},
		{"uint8 silence", SampleFromInt8(128), 0},
		{"uint8 min", SampleFromInt8(0), Min24Bit},
		{"int32 max", SampleFrom32Bit(0x7fffffff), Max24Bit},
		{"packed negative", SampleFrom24Bit([3]byte{0x00, 0xFF, 0xFF}), -256},
		{"packed max", SampleFrom24Bit([3]byte{0xFF, 0xFF, 0x7F}), Max24Bit},
		{"clamp high", Clamp24(1 << 30), Max24Bit},
		{"clamp low", Clamp24(-(1 << 30)), Min24Bit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, tt.got)
			}
		})
	}
}

func TestRoundTrip16Bit(t *testing.T) {
	for _, original := range []int16{0, 100, -100, 32767, -32768} {
		if result := SampleToInt16(SampleFromInt16(original)); result != original {
			t.Errorf("round-trip failed: %d -> %d", original, result)
		}
	}
}

func TestRoundTrip24Bit(t *testing.T) {
	for _, original := range []int32{0, 100000, -100000, Max24Bit, Min24Bit} {
		if result := SampleFrom24Bit(SampleTo24Bit(original)); result != original {
			t.Errorf("round-trip failed: %d -> %d", original, result)
		}
	}
}

func TestFormatByteRate(t *testing.T) {
	pcm := Format{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: 16}
	if pcm.ByteRate() != 176400 {
		t.Errorf("expected 176400, got %d", pcm.ByteRate())
	}

	mp3 := Format{Codec: "mp3"}
	if mp3.ByteRate() != compressedByteRate {
		t.Errorf("expected %d for compressed, got %d", compressedByteRate, mp3.ByteRate())
	}
}
