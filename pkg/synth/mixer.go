// ABOUTME: Modulated sound mixer for additive synthesis
// ABOUTME: Renders sound descriptors with windowed frequency and amplitude curves
package synth

import (
	"fmt"
	"math"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
)

// ModulationWindow is the sub-interval of normalized time over which a curve
// ramps. Before Begin the curve reads phase 0, after End phase 1.
type ModulationWindow struct {
	Begin float64 `json:"begin"`
	End   float64 `json:"end"`
}

// FullWindow spans the whole sound
var FullWindow = ModulationWindow{Begin: 0, End: 1}

// Validate requires 0 <= Begin < End <= 1
func (w ModulationWindow) Validate() error {
	if !(w.Begin < w.End) || w.Begin < 0 || w.End > 1 {
		return fmt.Errorf("%w: [%v, %v]", ErrInvalidModulationWindow, w.Begin, w.End)
	}
	return nil
}

// Phase maps normalized time t to the clamped phase within the window
func (w ModulationWindow) Phase(t float64) float64 {
	return clamp((t-w.Begin)/(w.End-w.Begin), 0, 1)
}

// SoundDescriptor is one additive voice of a mixed sound. Amplitude and
// frequency move between their floor and peak values following their curves.
type SoundDescriptor struct {
	Waveform Waveform `json:"waveform"`

	Amplitude      float64 `json:"amplitude"`
	AmplitudeFloor float64 `json:"amplitude_floor"`
	Frequency      float64 `json:"frequency"`
	FrequencyFloor float64 `json:"frequency_floor"`

	AmplitudeCurve  Curve            `json:"amplitude_curve"`
	AmplitudeWindow ModulationWindow `json:"amplitude_window"`
	FrequencyCurve  Curve            `json:"frequency_curve"`
	FrequencyWindow ModulationWindow `json:"frequency_window"`
}

// Validate rejects unknown waveforms or curves, malformed windows and
// non-finite parameters
func (d SoundDescriptor) Validate() error {
	if !d.Waveform.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownWaveform, int(d.Waveform))
	}
	for _, v := range []float64{d.Amplitude, d.AmplitudeFloor, d.Frequency, d.FrequencyFloor} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: parameters must be finite", ErrInvalidDescriptor)
		}
	}
	if err := d.AmplitudeCurve.Validate(); err != nil {
		return fmt.Errorf("amplitude curve: %w", err)
	}
	if err := d.FrequencyCurve.Validate(); err != nil {
		return fmt.Errorf("frequency curve: %w", err)
	}
	if err := d.AmplitudeWindow.Validate(); err != nil {
		return fmt.Errorf("amplitude window: %w", err)
	}
	if err := d.FrequencyWindow.Validate(); err != nil {
		return fmt.Errorf("frequency window: %w", err)
	}
	return nil
}

// AmplitudeAt returns the amplitude at normalized time t
func (d SoundDescriptor) AmplitudeAt(t float64) float64 {
	gain := d.AmplitudeCurve.Eval(d.AmplitudeWindow.Phase(t))
	return d.AmplitudeFloor + (d.Amplitude-d.AmplitudeFloor)*gain
}

// FrequencyAt returns the frequency at normalized time t
func (d SoundDescriptor) FrequencyAt(t float64) float64 {
	gain := d.FrequencyCurve.Eval(d.FrequencyWindow.Phase(t))
	return d.FrequencyFloor + (d.Frequency-d.FrequencyFloor)*gain
}

// RenderMix renders one beat of the descriptors summed together. All
// descriptors are validated before any sample is produced. Voices are added
// with saturation at full scale and are not normalized by voice count.
func (e *Engine) RenderMix(descriptors []SoundDescriptor) ([]int16, error) {
	for i, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("descriptor %d: %w", i, err)
		}
	}

	frames := e.SamplesPerStep()
	channels := e.format.Channels
	dt := 1.0 / float64(e.format.SampleRate)

	out := make([]int16, frames*channels)
	for _, d := range descriptors {
		phase := 0.0
		for i := 0; i < frames; i++ {
			t := float64(i) / float64(frames)
			freq := d.FrequencyAt(t)
			amp := d.AmplitudeAt(t)

			s := audio.FloatToSample(amp * e.Oscillate(d.Waveform, 0, freq, phase))
			for c := 0; c < channels; c++ {
				idx := i*channels + c
				out[idx] = audio.SaturatingAdd(out[idx], s)
			}

			phase += dt * freq
		}
	}

	return out, nil
}
