// ABOUTME: Seeded noise table shared by noise-based generators
// ABOUTME: Filled once, read with wraparound and linear interpolation
package synth

import (
	"math"
	"math/rand"
	"sync"
)

// NoiseTable is a fixed-length table of values in [-1,1]. It is written
// exactly once by Init and is safe for concurrent reads afterwards.
type NoiseTable struct {
	once   sync.Once
	values []float64
}

// NewNoiseTable creates an uninitialized table of the given length (usually
// the sample rate). An uninitialized table reads as silence.
func NewNoiseTable(size int) *NoiseTable {
	if size < 2 {
		size = 2
	}
	return &NoiseTable{values: make([]float64, size)}
}

// Init fills the table from seed. Only the first call has any effect.
func (n *NoiseTable) Init(seed int64) {
	n.once.Do(func() {
		rng := rand.New(rand.NewSource(seed))
		for i := range n.values {
			n.values[i] = -1.0 + 2.0*rng.Float64()
		}
	})
}

// Len returns the table length
func (n *NoiseTable) Len() int { return len(n.values) }

// SampleAt reads the table at index t*freq. t is clamped to [0,1] and freq to
// [0, Len]; the index wraps around the table.
func (n *NoiseTable) SampleAt(t, freq float64) float64 {
	t = clamp(t, 0, 1)
	freq = clamp(freq, 0, float64(len(n.values)))
	return n.SampleAtPhase(t * freq)
}

// SampleAtPhase reads the table at a fractional index accumulated by the
// caller, wrapping modulo Len and interpolating between neighbouring cells.
func (n *NoiseTable) SampleAtPhase(index float64) float64 {
	if math.IsNaN(index) || math.IsInf(index, 0) {
		return 0
	}

	size := float64(len(n.values))
	index = math.Mod(index, size)
	if index < 0 {
		index += size
	}

	i := int(index)
	fac := index - float64(i)
	n0 := n.values[i%len(n.values)]
	n1 := n.values[(i+1)%len(n.values)]

	return interpolate(n0, n1, fac)
}

func interpolate(v0, v1, fac float64) float64 {
	return (1.0-fac)*v0 + fac*v1
}

// clamp also maps NaN to lo
func clamp(x, lo, hi float64) float64 {
	if x > hi {
		return hi
	}
	if x >= lo {
		return x
	}
	return lo
}
