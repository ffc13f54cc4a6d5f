// ABOUTME: Audio type definitions
// ABOUTME: Defines the stream format and 16-bit sample conversions
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// MaxSample is the full-scale positive 16-bit sample
	MaxSample = 32767
	// MinSample is the full-scale negative 16-bit sample (symmetric with MaxSample)
	MinSample = -32767

	// Defaults used when a Format field is left zero
	DefaultSampleRate = 44100
	DefaultChannels   = 2
	DefaultBitDepth   = 16
)

// Format describes the PCM stream format of an engine
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat returns 44.1kHz stereo 16-bit
func DefaultFormat() Format {
	return Format{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
	}
}

// WithDefaults fills zero fields with the package defaults
func (f Format) WithDefaults() Format {
	if f.SampleRate == 0 {
		f.SampleRate = DefaultSampleRate
	}
	if f.Channels == 0 {
		f.Channels = DefaultChannels
	}
	if f.BitDepth == 0 {
		f.BitDepth = DefaultBitDepth
	}
	return f
}

// Validate checks that the format can be rendered and played
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d (supported: 16)", f.BitDepth)
	}
	return nil
}

// BytesPerSample returns the size of one sample of one channel
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// FrameSize returns the size in bytes of one interleaved frame
func (f Format) FrameSize() int {
	return f.Channels * f.BytesPerSample()
}

// Duration returns the playback time of an interleaved sample count
func (f Format) Duration(samples int) time.Duration {
	frames := samples / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// FloatToSample converts a [-1,1] float to a 16-bit sample, clamping to
// [MinSample, MaxSample]. NaN converts to silence.
func FloatToSample(x float64) int16 {
	if math.IsNaN(x) {
		return 0
	}
	v := x * MaxSample
	if v > MaxSample {
		return MaxSample
	}
	if v < MinSample {
		return MinSample
	}
	return int16(v)
}

// SaturatingAdd adds two samples and clamps the result to [MinSample, MaxSample]
func SaturatingAdd(a, b int16) int16 {
	sum := int32(a) + int32(b)
	if sum > MaxSample {
		return MaxSample
	}
	if sum < MinSample {
		return MinSample
	}
	return int16(sum)
}

// SamplesToBytes packs samples as signed 16-bit little-endian
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples unpacks signed 16-bit little-endian data. A trailing odd
// byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
