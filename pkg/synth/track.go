// ABOUTME: Track sequencer rendering 16 steps into one PCM buffer
// ABOUTME: Also renders single-instrument hits with an extra envelope
package synth

import (
	"fmt"
	"math"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
)

// Step pairs a note with an instrument. Note is a frequency in Hz, or the
// noise read rate for noise-based instruments.
type Step struct {
	Note       float64    `json:"note"`
	Instrument Instrument `json:"instrument"`
}

// Track is an ordered, fixed-length sequence of steps, one beat each
type Track [StepsPerTrack]Step

// Validate rejects unknown instruments and non-finite notes
func (t Track) Validate() error {
	for i, step := range t {
		if !step.Instrument.Valid() {
			return fmt.Errorf("step %d: %w: %d", i, ErrUnknownInstrument, int(step.Instrument))
		}
		if math.IsNaN(step.Note) || math.IsInf(step.Note, 0) {
			return fmt.Errorf("step %d: note must be finite, got %v", i, step.Note)
		}
	}
	return nil
}

// RenderTrack renders every step of track into one interleaved buffer of
// TrackLen samples. Each step starts its instrument at phase 0; no state
// carries across step boundaries.
func (e *Engine) RenderTrack(track Track) []int16 {
	samplesPerStep := e.SamplesPerStep()
	channels := e.format.Channels

	out := make([]int16, e.TrackLen())
	pos := 0
	for _, step := range track {
		for i := 0; i < samplesPerStep; i++ {
			t := float64(i) / float64(samplesPerStep)
			s := audio.FloatToSample(e.Voice(step.Instrument, t, step.Note))
			for c := 0; c < channels; c++ {
				out[pos] = s
				pos++
			}
		}
	}

	return out
}

// HitOptions shapes a single rendered hit
type HitOptions struct {
	Envelope   Curve
	Level      float64
	Compressor *Compressor
}

// DefaultHitOptions returns a gentle 1/3 level under a short-attack ADSR
func DefaultHitOptions() HitOptions {
	return HitOptions{
		Envelope: Curve{Kind: CurveADSR, Attack: 0.01, Decay: 0.01, Sustain: 1.0, Release: 0.95},
		Level:    1.0 / 3.0,
	}
}

// RenderHit renders one beat of a single step scaled by opts.Level and
// opts.Envelope, optionally through opts.Compressor
func (e *Engine) RenderHit(step Step, opts HitOptions) ([]int16, error) {
	if err := opts.Envelope.Validate(); err != nil {
		return nil, err
	}
	if !step.Instrument.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstrument, int(step.Instrument))
	}

	samplesPerStep := e.SamplesPerStep()
	channels := e.format.Channels

	out := make([]int16, e.BeatLen())
	pos := 0
	for i := 0; i < samplesPerStep; i++ {
		period := float64(i) / float64(samplesPerStep)
		sample := opts.Level * opts.Envelope.Eval(period) * e.Voice(step.Instrument, period, step.Note)
		if opts.Compressor != nil {
			sample = opts.Compressor.Process(sample)
		}
		s := audio.FloatToSample(sample)
		for c := 0; c < channels; c++ {
			out[pos] = s
			pos++
		}
	}

	return out, nil
}
