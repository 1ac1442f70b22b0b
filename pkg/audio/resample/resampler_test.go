// ABOUTME: Tests for the linear resampler
// ABOUTME: Rate conversion ratios and continuity across chunks
package resample

import "testing"

func TestResampleIdentity(t *testing.T) {
	r := New(48000, 48000, 1)
	in := []int32{1, 2, 3, 4}
	out := make([]int32, r.MaxOutput(len(in)))

	n := r.Resample(in, out)
	// The last frame is held back until the next chunk arrives
	if n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
	for i := 0; i < n; i++ {
		if out[i] != in[i] {
			t.Errorf("sample %d: expected %d, got %d", i, in[i], out[i])
		}
	}

	n = r.Resample([]int32{5, 6}, out)
	if n != 2 || out[0] != 4 || out[1] != 5 {
		t.Errorf("expected [4 5], got %v", out[:n])
	}
}

func TestResampleUpsampleInterpolates(t *testing.T) {
	r := New(1, 2, 1)
	in := []int32{0, 100, 200}
	out := make([]int32, r.MaxOutput(len(in)))

	n := r.Resample(in, out)
	expected := []int32{0, 50, 100, 150}
	if n != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), n)
	}
	for i, e := range expected {
		if out[i] != e {
			t.Errorf("sample %d: expected %d, got %d", i, e, out[i])
		}
	}
}

func TestResampleRatioOverManyChunks(t *testing.T) {
	r := New(44100, 48000, 2)
	in := make([]int32, 441*2)
	out := make([]int32, r.MaxOutput(len(in)))

	total := 0
	for i := 0; i < 100; i++ {
		total += r.Resample(in, out)
	}

	frames := total / 2
	// 44100 input frames should become about 48000 output frames
	if frames < 47990 || frames > 48000 {
		t.Errorf("expected about 48000 frames, got %d", frames)
	}
}

func TestResampleStereoChannelsStaySeparate(t *testing.T) {
	r := New(2, 1, 2)
	in := []int32{10, -10, 20, -20, 30, -30, 40, -40, 50, -50}
	out := make([]int32, r.MaxOutput(len(in)))

	n := r.Resample(in, out)
	for i := 0; i < n; i += 2 {
		if out[i] != -out[i+1] {
			t.Errorf("frame %d mixed channels: %d %d", i/2, out[i], out[i+1])
		}
	}
}
