// ABOUTME: Loads tracks, mixes and harmonic sets from JSON pattern files
// ABOUTME: Also provides the built-in demo content played by default
package pattern

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-synth/pkg/synth"
)

// DefaultLoops is how often a pattern repeats when the file does not say
const DefaultLoops = 2

// Kind names what a pattern file renders
type Kind string

const (
	KindTrack     Kind = "track"
	KindMix       Kind = "mix"
	KindHarmonics Kind = "harmonics"
)

var (
	ErrEmptyPattern     = errors.New("pattern has no track, mix or harmonics")
	ErrAmbiguousPattern = errors.New("pattern must contain exactly one of track, mix or harmonics")
)

// File is the JSON layout of a pattern
type File struct {
	Name  string `json:"name,omitempty"`
	BPM   int    `json:"bpm,omitempty"`
	Loops int    `json:"loops,omitempty"`

	Track     []synth.Step            `json:"track,omitempty"`
	Mix       []synth.SoundDescriptor `json:"mix,omitempty"`
	Harmonics []synth.Harmonic        `json:"harmonics,omitempty"`
}

// Load reads and validates a pattern file
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern: %w", err)
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a pattern. Unknown fields are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var p File
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode pattern: %w", err)
	}
	p.normalize()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseBytes is Parse over a byte slice
func ParseBytes(data []byte) (*File, error) {
	return Parse(bytes.NewReader(data))
}

// normalize fills defaults. An all-zero window means the whole beat.
func (p *File) normalize() {
	if p.Loops <= 0 {
		p.Loops = DefaultLoops
	}
	for i := range p.Mix {
		d := &p.Mix[i]
		if d.AmplitudeWindow == (synth.ModulationWindow{}) {
			d.AmplitudeWindow = synth.FullWindow
		}
		if d.FrequencyWindow == (synth.ModulationWindow{}) {
			d.FrequencyWindow = synth.FullWindow
		}
	}
}

// Kind reports what the pattern renders
func (p *File) Kind() Kind {
	switch {
	case len(p.Track) > 0:
		return KindTrack
	case len(p.Mix) > 0:
		return KindMix
	default:
		return KindHarmonics
	}
}

// Validate checks that exactly one section is present and well formed
func (p *File) Validate() error {
	sections := 0
	for _, n := range []int{len(p.Track), len(p.Mix), len(p.Harmonics)} {
		if n > 0 {
			sections++
		}
	}
	switch sections {
	case 0:
		return ErrEmptyPattern
	case 1:
	default:
		return ErrAmbiguousPattern
	}

	if p.BPM < 0 {
		return fmt.Errorf("invalid bpm: %d", p.BPM)
	}

	switch p.Kind() {
	case KindTrack:
		track, err := p.TrackValue()
		if err != nil {
			return err
		}
		return track.Validate()
	case KindMix:
		for i, d := range p.Mix {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("mix voice %d: %w", i, err)
			}
		}
	}
	return nil
}

// TrackValue returns the track section as a fixed-length track
func (p *File) TrackValue() (synth.Track, error) {
	var track synth.Track
	if len(p.Track) != synth.StepsPerTrack {
		return track, fmt.Errorf("track has %d steps, expected %d", len(p.Track), synth.StepsPerTrack)
	}
	copy(track[:], p.Track)
	return track, nil
}

// HarmonicSet builds the organ partials, deduplicating as they are added
func (p *File) HarmonicSet() *synth.Harmonics {
	h := &synth.Harmonics{}
	for _, partial := range p.Harmonics {
		h.Set(partial.Multiplier, partial.Level)
	}
	return h
}

// DemoTrack is the built-in 16-step beat: kick and hi-hat groove with a snare
// backbeat, ending on an A major arpeggio of tone stacks.
func DemoTrack() synth.Track {
	return synth.Track{
		{Note: 60, Instrument: synth.Kick},
		{Note: 14000, Instrument: synth.HiHat},
		{Note: 3000, Instrument: synth.Snare},
		{Note: 14000, Instrument: synth.HiHat},

		{Note: 60, Instrument: synth.Kick},
		{Note: 14000, Instrument: synth.HiHat},
		{Note: 3500, Instrument: synth.Snare},
		{Note: 14000, Instrument: synth.HiHat},

		{Note: 60, Instrument: synth.Kick},
		{Note: 60, Instrument: synth.Kick},
		{Note: 2400, Instrument: synth.Snare},
		{Note: 60, Instrument: synth.Kick},

		{Note: 440, Instrument: synth.ToneStack},
		{Note: 554.46, Instrument: synth.ToneStack},
		{Note: 659.25, Instrument: synth.ToneStack},
		{Note: 554.46, Instrument: synth.ToneStack},
	}
}

// DemoMix is a swept square bass under a swelling sine lead
func DemoMix() []synth.SoundDescriptor {
	return []synth.SoundDescriptor{
		{
			Waveform:        synth.WaveSine,
			Amplitude:       0.4,
			Frequency:       880,
			FrequencyFloor:  440,
			AmplitudeCurve:  synth.Curve{Kind: synth.CurveADSR, Attack: 0.1, Decay: 0.3, Sustain: 0.6, Release: 0.9},
			AmplitudeWindow: synth.FullWindow,
			FrequencyCurve:  synth.Curve{Kind: synth.CurveSymmetricSqrt},
			FrequencyWindow: synth.FullWindow,
		},
		{
			Waveform:        synth.WaveSquare,
			Amplitude:       0.25,
			Frequency:       110,
			FrequencyFloor:  55,
			AmplitudeCurve:  synth.Curve{Kind: synth.CurveSquareDrop},
			AmplitudeWindow: synth.FullWindow,
			FrequencyCurve:  synth.Curve{Kind: synth.CurveSquareDrop},
			FrequencyWindow: synth.ModulationWindow{Begin: 0, End: 0.5},
		},
	}
}

// DemoHarmonics is a hollow organ of odd partials
func DemoHarmonics() *synth.Harmonics {
	h := &synth.Harmonics{}
	h.Set(1, 1)
	h.Set(3, 0.5)
	h.Set(5, 0.25)
	return h
}
