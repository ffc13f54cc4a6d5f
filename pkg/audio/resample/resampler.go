// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Converts whole interleaved int16 buffers using linear interpolation
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels <= 0 {
		channels = 1
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Resample converts one buffer to the output rate. Buffers are independent:
// no state carries over between calls, and the last input frame is held at
// the tail.
// input: interleaved samples at inputRate
// output: interleaved samples at outputRate
func (r *Resampler) Resample(input []int16) []int16 {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return nil
	}
	if r.Passthrough() {
		out := make([]int16, inputFrames*r.channels)
		copy(out, input)
		return out
	}

	outputFrames := r.OutputFrames(inputFrames)
	output := make([]int16, outputFrames*r.channels)

	for outIdx := 0; outIdx < outputFrames; outIdx++ {
		// Calculate which input frame we need
		inputPos := float64(outIdx) * r.ratio
		inputIdx := int(inputPos)
		frac := inputPos - float64(inputIdx)

		if inputIdx >= inputFrames-1 {
			inputIdx = inputFrames - 1
			frac = 0
		}
		nextIdx := min(inputIdx+1, inputFrames-1)

		// Interpolate each channel
		for ch := 0; ch < r.channels; ch++ {
			sample1 := float64(input[inputIdx*r.channels+ch])
			sample2 := float64(input[nextIdx*r.channels+ch])
			output[outIdx*r.channels+ch] = int16(math.Round(sample1*(1.0-frac) + sample2*frac))
		}
	}

	return output
}

// OutputFrames calculates how many output frames a buffer of inputFrames produces
func (r *Resampler) OutputFrames(inputFrames int) int {
	return int(math.Round(float64(inputFrames) / r.ratio))
}
