// ABOUTME: Raw waveform generators
// ABOUTME: Sine, square and noise oscillators with explicit phase offset
package synth

import (
	"fmt"
	"math"
)

// Sine evaluates sin(2π(t·freq + phase)). phase is in cycles.
func Sine(t, freq, phase float64) float64 {
	return math.Sin(2.0 * math.Pi * (t*freq + phase))
}

// Square is SquareDuty with a 50% duty cycle
func Square(t, freq, phase float64) float64 {
	return SquareDuty(t, freq, phase, 0.5)
}

// SquareDuty returns -1 for the first flip fraction of each cycle and 1 for
// the rest
func SquareDuty(t, freq, phase, flip float64) float64 {
	_, frac := math.Modf(t*freq + phase)
	if frac < 0 {
		frac += 1.0
	}
	if frac < flip {
		return -1.0
	}
	return 1.0
}

// Waveform selects the base oscillator of a sound descriptor
type Waveform int

const (
	WaveSilence Waveform = iota
	WaveSine
	WaveSquare
	WaveNoise
)

var waveformNames = map[Waveform]string{
	WaveSilence: "silence",
	WaveSine:    "sine",
	WaveSquare:  "square",
	WaveNoise:   "noise",
}

func (w Waveform) String() string {
	if name, ok := waveformNames[w]; ok {
		return name
	}
	return fmt.Sprintf("waveform(%d)", int(w))
}

// Valid reports whether w is a known waveform
func (w Waveform) Valid() bool {
	_, ok := waveformNames[w]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (w Waveform) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownWaveform, int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (w *Waveform) UnmarshalText(text []byte) error {
	for wave, name := range waveformNames {
		if name == string(text) {
			*w = wave
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownWaveform, string(text))
}

// Oscillate evaluates waveform w. Noise reads the table at index t·freq+phase.
func (e *Engine) Oscillate(w Waveform, t, freq, phase float64) float64 {
	switch w {
	case WaveSilence:
		return 0
	case WaveSine:
		return Sine(t, freq, phase)
	case WaveSquare:
		return Square(t, freq, phase)
	case WaveNoise:
		return e.noise.SampleAtPhase(t*freq + phase)
	default:
		return 0
	}
}
