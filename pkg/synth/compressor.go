// ABOUTME: Per-stream dynamics compressor
// ABOUTME: Tracks a decaying peak and attenuates while it exceeds the threshold
package synth

import "math"

// Compressor attenuates samples while the tracked peak is above Threshold.
// The peak decays by a fixed amount per sample. A Compressor carries state
// between calls, so use one per stream and do not share it between goroutines.
type Compressor struct {
	Threshold float64
	Reduction float64

	decay float64
	peak  float64
}

// NewCompressor creates a compressor whose peak decays to zero over two
// seconds of samples. Reductions below 1 are treated as 1 (no gain).
func NewCompressor(threshold, reduction float64, sampleRate int) *Compressor {
	if reduction < 1 {
		reduction = 1
	}
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Compressor{
		Threshold: threshold,
		Reduction: reduction,
		decay:     1.0 / (2.0 * float64(sampleRate)),
	}
}

// Process compresses one sample
func (c *Compressor) Process(x float64) float64 {
	c.peak = math.Max(math.Abs(x), c.peak)
	if c.peak > c.Threshold {
		x *= 1.0 / c.Reduction
	}
	c.peak = math.Max(c.peak-c.decay, 0)
	return x
}

// Peak returns the current tracked peak
func (c *Compressor) Peak() float64 { return c.peak }

// Reset clears the tracked peak
func (c *Compressor) Reset() { c.peak = 0 }
