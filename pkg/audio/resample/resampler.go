// ABOUTME: Streaming linear resampler for converting audio sample rates
// ABOUTME: Carries the last frame across calls so chunk boundaries interpolate cleanly
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64 // in frames, relative to lastFrame
	lastFrame  []int32
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]int32, channels),
	}
}

// Resample converts interleaved input at inputRate into output at
// outputRate and returns the number of output samples written. output
// should hold at least MaxOutput(len(input)) samples; input that does not
// fit is dropped.
func (r *Resampler) Resample(input []int32, output []int32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}

	// Virtual frame 0 is the last frame of the previous call.
	offset := 0
	if r.primed {
		offset = 1
	}
	total := inputFrames + offset
	frame := func(i, ch int) int32 {
		if i < offset {
			return r.lastFrame[ch]
		}
		return input[(i-offset)*r.channels+ch]
	}

	outputFrames := len(output) / r.channels
	outIdx := 0
	for outIdx < outputFrames {
		idx := int(r.position)
		if idx+1 >= total {
			break
		}
		frac := r.position - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			s1 := float64(frame(idx, ch))
			s2 := float64(frame(idx+1, ch))
			output[outIdx*r.channels+ch] = int32(s1*(1.0-frac) + s2*frac)
		}
		outIdx++
		r.position += r.ratio
	}

	copy(r.lastFrame, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
	r.position -= float64(total - 1)
	if r.position < 0 {
		r.position = 0
	}
	r.primed = true

	return outIdx * r.channels
}

// Reset drops the carried frame, used after a seek
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// MaxOutput bounds the output samples produced from inputSamples
func (r *Resampler) MaxOutput(inputSamples int) int {
	frames := inputSamples/r.channels + 1
	return (int(math.Ceil(float64(frames)/r.ratio)) + 1) * r.channels
}

// OutputRate returns the target sample rate
func (r *Resampler) OutputRate() int {
	return r.outputRate
}
