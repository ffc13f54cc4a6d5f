// ABOUTME: Synthesis engine holding format, tempo and noise table
// ABOUTME: Every render operation runs on an Engine value
package synth

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
)

const (
	// StepsPerTrack is the fixed length of a Track
	StepsPerTrack = 16

	DefaultBPM  = 120
	DefaultSeed = 42
)

// Config configures an Engine. Zero fields take the defaults.
type Config struct {
	Format audio.Format
	BPM    int
	Seed   int64
}

// Engine renders tracks, mixes and hits for one fixed stream format
type Engine struct {
	format audio.Format
	bpm    int
	seed   int64
	noise  *NoiseTable
}

// NewEngine creates an engine and initializes its noise table
func NewEngine(config Config) (*Engine, error) {
	format := config.Format.WithDefaults()
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format: %w", err)
	}

	bpm := config.BPM
	if bpm == 0 {
		bpm = DefaultBPM
	}
	if bpm < 0 || bpm > format.SampleRate*60 {
		return nil, fmt.Errorf("invalid tempo: %d bpm", bpm)
	}

	seed := config.Seed
	if seed == 0 {
		seed = DefaultSeed
	}

	noise := NewNoiseTable(format.SampleRate)
	noise.Init(seed)

	return &Engine{
		format: format,
		bpm:    bpm,
		seed:   seed,
		noise:  noise,
	}, nil
}

// Format returns the stream format
func (e *Engine) Format() audio.Format { return e.format }

// BPM returns the tempo
func (e *Engine) BPM() int { return e.bpm }

// Seed returns the noise seed
func (e *Engine) Seed() int64 { return e.seed }

// Noise returns the engine's noise table
func (e *Engine) Noise() *NoiseTable { return e.noise }

// SamplesPerStep returns the number of frames in one beat
func (e *Engine) SamplesPerStep() int {
	return int(float64(e.format.SampleRate) * 60.0 / float64(e.bpm))
}

// TrackLen returns the interleaved sample count of a rendered track
func (e *Engine) TrackLen() int {
	return StepsPerTrack * e.SamplesPerStep() * e.format.Channels
}

// BeatLen returns the interleaved sample count of one beat
func (e *Engine) BeatLen() int {
	return e.SamplesPerStep() * e.format.Channels
}
