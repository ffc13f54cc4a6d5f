// ABOUTME: Sentinel errors for sample generation
// ABOUTME: Reported when envelopes, windows or descriptors fail validation
package synth

import "errors"

var (
	ErrInvalidModulationWindow = errors.New("invalid modulation window")
	ErrInvalidEnvelope         = errors.New("invalid envelope")
	ErrInvalidDescriptor       = errors.New("invalid sound descriptor")
	ErrUnknownInstrument       = errors.New("unknown instrument")
	ErrUnknownWaveform         = errors.New("unknown waveform")
	ErrUnknownCurve            = errors.New("unknown curve")
)
