// ABOUTME: Harmonic organ built from square-wave partials
// ABOUTME: Renders a four-chord progression with per-channel auto-pan
package synth

import (
	"math"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
)

const (
	// HarmonicsBeats is the length of the organ progression
	HarmonicsBeats = 4

	harmonicsBaseFreq  = 220.0
	harmonicsTolerance = 0.0001
)

// harmonicsRoots are the chord roots of the progression in semitones above
// the base frequency
var harmonicsRoots = [HarmonicsBeats]float64{0, 4, 7, 5}

// Harmonic is one partial of the organ: a frequency multiplier and its level
type Harmonic struct {
	Multiplier float64 `json:"multiplier"`
	Level      float64 `json:"level"`
}

// Harmonics is an ordered set of partials with unique multipliers
type Harmonics struct {
	partials []Harmonic
}

// Set adds a partial, or updates the level of an existing partial whose
// multiplier is within 1e-4. Levels are clamped to [-1,1].
func (h *Harmonics) Set(multiplier, level float64) {
	level = clamp(level, -1, 1)
	for i := range h.partials {
		if math.Abs(h.partials[i].Multiplier-multiplier) < harmonicsTolerance {
			h.partials[i].Level = level
			return
		}
	}
	h.partials = append(h.partials, Harmonic{Multiplier: multiplier, Level: level})
}

// Len returns the number of partials
func (h *Harmonics) Len() int { return len(h.partials) }

// Partials returns a copy of the partials in insertion order
func (h *Harmonics) Partials() []Harmonic {
	out := make([]Harmonic, len(h.partials))
	copy(out, h.partials)
	return out
}

// RenderHarmonics renders HarmonicsBeats beats of the organ. Each beat plays
// the next chord root under a square-drop envelope, and each channel is
// panned by a slow sine offset by half a cycle per channel.
func (e *Engine) RenderHarmonics(h *Harmonics) []int16 {
	frames := e.SamplesPerStep() * HarmonicsBeats
	channels := e.format.Channels
	beatSec := 60.0 / float64(e.bpm)

	out := make([]int16, frames*channels)
	if h == nil || len(h.partials) == 0 {
		return out
	}

	partialLevel := 1.0 / (2.0 + float64(len(h.partials)))
	for i := 0; i < frames; i++ {
		t := float64(i) / float64(e.format.SampleRate)
		beat, period := math.Modf(t / beatSec)
		root := harmonicsRoots[int(beat)%HarmonicsBeats]
		freq := harmonicsBaseFreq * math.Pow(semitone, root)
		env := SquareDrop(period)

		for c := 0; c < channels; c++ {
			level := partialLevel * (0.6 + 0.4*math.Sin(0.5*t*math.Pi+float64(c)*math.Pi))
			sample := 0.0
			for _, p := range h.partials {
				sample += level * p.Level * env * Square(t, freq*p.Multiplier, 0)
			}
			out[i*channels+c] = audio.FloatToSample(sample)
		}
	}

	return out
}
