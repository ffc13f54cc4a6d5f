// ABOUTME: Amplitude envelope curves
// ABOUTME: ADSR, symmetric click shapes, drop shapes and the Curve variant type
package synth

import (
	"fmt"
	"math"
)

// minSegment floors segment lengths so zero-length segments never divide by zero
const minSegment = 0.00001

// ADSR is a piecewise-linear envelope over phase in [0,1]. The boundaries are
// absolute phase thresholds: ramp to 1 until attack, fall to sustain until
// decay, hold until release, then fall to 0 at phase 1.
func ADSR(phase, attack, decay, sustain, release float64) float64 {
	phase = clamp(phase, 0, 1)

	switch {
	case phase <= attack:
		return phase / math.Max(attack, minSegment)
	case phase <= decay:
		return 1.0 - (1.0-sustain)*((phase-attack)/math.Max(decay-attack, minSegment))
	case phase <= release:
		return sustain
	default:
		return sustain - sustain*(phase-release)/math.Max(1.0-release, minSegment)
	}
}

// SymmetricSquare rises as 4p² to 1 at phase 0.5 and mirrors back down
func SymmetricSquare(phase float64) float64 {
	phase = fold(clamp(phase, 0, 1))
	return phase * phase * 4.0
}

// SymmetricSqrt rises as sqrt(2p) to 1 at phase 0.5 and mirrors back down
func SymmetricSqrt(phase float64) float64 {
	phase = fold(clamp(phase, 0, 1))
	return math.Sqrt(2.0 * phase)
}

// SquareDrop falls from 1 to 0 as (1-p)²
func SquareDrop(phase float64) float64 {
	phase = clamp(phase, 0, 1)
	return (1.0 - phase) * (1.0 - phase)
}

// SqrtDrop falls from 1 to 0 as sqrt(1-p)
func SqrtDrop(phase float64) float64 {
	phase = clamp(phase, 0, 1)
	return math.Sqrt(1.0 - phase)
}

func fold(phase float64) float64 {
	if phase < 0.5 {
		return phase
	}
	return 1.0 - phase
}

// CurveKind selects an envelope shape
type CurveKind int

const (
	CurveConstant CurveKind = iota
	CurveADSR
	CurveSymmetricSquare
	CurveSymmetricSqrt
	CurveLinear
	CurveSquareDrop
	CurveSqrtDrop
)

var curveNames = map[CurveKind]string{
	CurveConstant:        "constant",
	CurveADSR:            "adsr",
	CurveSymmetricSquare: "symmetric-square",
	CurveSymmetricSqrt:   "symmetric-sqrt",
	CurveLinear:          "linear",
	CurveSquareDrop:      "square-drop",
	CurveSqrtDrop:        "sqrt-drop",
}

func (k CurveKind) String() string {
	if name, ok := curveNames[k]; ok {
		return name
	}
	return fmt.Sprintf("curve(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler
func (k CurveKind) MarshalText() ([]byte, error) {
	if _, ok := curveNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCurve, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *CurveKind) UnmarshalText(text []byte) error {
	for kind, name := range curveNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCurve, string(text))
}

// Curve is a gain function of phase in [0,1]. The ADSR fields are only read
// when Kind is CurveADSR.
type Curve struct {
	Kind    CurveKind `json:"kind"`
	Attack  float64   `json:"attack,omitempty"`
	Decay   float64   `json:"decay,omitempty"`
	Sustain float64   `json:"sustain,omitempty"`
	Release float64   `json:"release,omitempty"`
}

// ConstantCurve always evaluates to 1
func ConstantCurve() Curve { return Curve{Kind: CurveConstant} }

// NewADSR creates a validated ADSR curve
func NewADSR(attack, decay, sustain, release float64) (Curve, error) {
	c := Curve{
		Kind:    CurveADSR,
		Attack:  attack,
		Decay:   decay,
		Sustain: sustain,
		Release: release,
	}
	if err := c.Validate(); err != nil {
		return Curve{}, err
	}
	return c, nil
}

// Validate rejects unknown kinds and ADSR boundaries outside
// 0 <= attack <= decay <= release <= 1 or sustain outside [0,1]
func (c Curve) Validate() error {
	if _, ok := curveNames[c.Kind]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCurve, int(c.Kind))
	}
	if c.Kind != CurveADSR {
		return nil
	}

	ordered := 0 <= c.Attack && c.Attack <= c.Decay && c.Decay <= c.Release && c.Release <= 1
	if !ordered {
		return fmt.Errorf("%w: boundaries must satisfy 0 <= attack <= decay <= release <= 1, got %v/%v/%v",
			ErrInvalidEnvelope, c.Attack, c.Decay, c.Release)
	}
	if c.Sustain < 0 || c.Sustain > 1 {
		return fmt.Errorf("%w: sustain level %v outside [0,1]", ErrInvalidEnvelope, c.Sustain)
	}
	return nil
}

// Eval returns the gain at phase
func (c Curve) Eval(phase float64) float64 {
	switch c.Kind {
	case CurveConstant:
		return 1.0
	case CurveADSR:
		return ADSR(phase, c.Attack, c.Decay, c.Sustain, c.Release)
	case CurveSymmetricSquare:
		return SymmetricSquare(phase)
	case CurveSymmetricSqrt:
		return SymmetricSqrt(phase)
	case CurveLinear:
		return clamp(phase, 0, 1)
	case CurveSquareDrop:
		return SquareDrop(phase)
	case CurveSqrtDrop:
		return SqrtDrop(phase)
	default:
		return 0
	}
}
