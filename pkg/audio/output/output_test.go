// ABOUTME: Audio output tests
// ABOUTME: Interface conformance and software volume scaling
package output

import (
	"testing"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
)

func TestOtoImplementsOutput(t *testing.T) {
	var _ Output = (*Oto)(nil)
}

func TestGetVolumeMultiplier(t *testing.T) {
	tests := []struct {
		name     string
		volume   float64
		muted    bool
		expected float64
	}{
		{"unity", 1.0, false, 1.0},
		{"half", 0.5, false, 0.5},
		{"muted", 1.0, true, 0.0},
		{"boost", 1.5, false, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getVolumeMultiplier(tt.volume, tt.muted); got != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestApplyVolumeClamps(t *testing.T) {
	out := applyVolume([]int32{1000, -1000, audio.Max24Bit, audio.Min24Bit}, 2.0)

	expected := []int32{2000, -2000, audio.Max24Bit, audio.Min24Bit}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("sample %d: expected %d, got %d", i, expected[i], out[i])
		}
	}
}

func TestWriteBeforeOpenFails(t *testing.T) {
	o := NewOto()
	if err := o.Write([]int32{0, 0}); err == nil {
		t.Error("expected error writing to unopened output")
	}
	if o.Buffered() != 0 {
		t.Errorf("expected nothing buffered, got %v", o.Buffered())
	}
}
