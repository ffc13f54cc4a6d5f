// ABOUTME: Instrument bank of layered percussion and tonal voices
// ABOUTME: Kick, snare, hi-hat, tone stack, raw noise and silence
package synth

import (
	"fmt"
	"math"
)

// Instrument selects a voice from the bank
type Instrument int

const (
	Silence Instrument = iota
	Kick
	Snare
	HiHat
	ToneStack
	Noise
)

var instrumentNames = map[Instrument]string{
	Silence:   "silence",
	Kick:      "kick",
	Snare:     "snare",
	HiHat:     "hihat",
	ToneStack: "tone-stack",
	Noise:     "noise",
}

func (i Instrument) String() string {
	if name, ok := instrumentNames[i]; ok {
		return name
	}
	return fmt.Sprintf("instrument(%d)", int(i))
}

// Valid reports whether i is a known instrument
func (i Instrument) Valid() bool {
	_, ok := instrumentNames[i]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (i Instrument) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstrument, int(i))
	}
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (i *Instrument) UnmarshalText(text []byte) error {
	for inst, name := range instrumentNames {
		if name == string(text) {
			*i = inst
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownInstrument, string(text))
}

// semitone is the equal-tempered frequency ratio of one semitone
const semitone = 1.0594631

// toneStackPartials are the (weight, frequency ratio) pairs of the tone stack
var toneStackPartials = [...]struct{ weight, ratio float64 }{
	{0.9, 1.0},
	{1.0, semitone * semitone * semitone},
	{0.8, semitone * semitone * semitone * semitone * semitone * semitone * semitone},
	{0.6, 2.0},
	{0.8, 4.0},
}

// toneStackNorm divides the partial sum before clamping
const toneStackNorm = 6.0

// Voice evaluates instrument inst at local time t in [0,1) with start
// frequency freq. Unknown instruments are silent.
func (e *Engine) Voice(inst Instrument, t, freq float64) float64 {
	switch inst {
	case Silence:
		return 0
	case Kick:
		return e.kick(t, freq)
	case Snare:
		return e.snare(t, freq)
	case HiHat:
		return e.hihat(t, freq)
	case ToneStack:
		return toneStack(t, freq)
	case Noise:
		return e.noise.SampleAt(t, freq)
	default:
		return 0
	}
}

// percussionEnv is the overall envelope shared by the drums: instant attack,
// full sustain, release over the last 5% of the step
func percussionEnv(t float64) float64 {
	return ADSR(t, 0.0, 0.0, 1.0, 0.95)
}

func (e *Engine) kick(t, startFreq float64) float64 {
	env := percussionEnv(t)

	lowBoomEnv := math.Exp(-1.5 * t)
	freqFalloff := math.Exp(-0.45 * t)
	lowBoom := lowBoomEnv * math.Sin(2.0*math.Pi*startFreq*freqFalloff)

	punchEnv := math.Exp(-0.95 * t * 400.0)
	punch := punchEnv * e.noise.SampleAt(t, 240.0) * 0.7

	slapFalloff := math.Exp(-0.25 * t * 400.0)
	slap := slapFalloff * e.noise.SampleAt(t, 5000.0) * 0.3

	return env * (lowBoom + punch + slap)
}

func (e *Engine) snare(t, startFreq float64) float64 {
	env := percussionEnv(t)

	punchEnv := math.Exp(-11.0 * t)
	punch := punchEnv * e.noise.SampleAt(t, startFreq)

	slapFalloff := math.Exp(-0.45 * t * 200.0)
	slap := slapFalloff * e.noise.SampleAt(t, 6000.0) * 0.3

	slap2Falloff := math.Exp(-0.45 * t * 100.0)
	slap2 := slap2Falloff * e.noise.SampleAt(t, 8000.0) * 0.3

	return env * (punch + slap + slap2)
}

func (e *Engine) hihat(t, startFreq float64) float64 {
	env := percussionEnv(t)

	punchEnv := math.Exp(-0.65 * t * 80.0)
	punch := punchEnv * e.noise.SampleAt(t, startFreq) * 0.7

	slapFalloff := math.Exp(-0.45 * t * 200.0)
	slap := slapFalloff * e.noise.SampleAt(t, 2000.0) * 0.3

	return env * (punch + slap)
}

func toneStack(t, startFreq float64) float64 {
	env := ADSR(t, 0.1, 0.3, 0.5, 0.9)

	sample := 0.0
	for _, p := range toneStackPartials {
		sample += p.weight * Square(t, startFreq*p.ratio, 0)
	}
	sample /= toneStackNorm

	return env * clamp(sample, 0.0, 1.0)
}
