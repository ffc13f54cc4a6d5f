// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int16 samples to 16-bit little-endian PCM bytes
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
)

// pcmFrameFrames is the number of frames carried per PCM packet
const pcmFrameFrames = 4096

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	channels int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}
	if format.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", format.Channels)
	}

	return &PCMEncoder{
		channels: format.Channels,
	}, nil
}

// Encode converts int16 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int16) ([]byte, error) {
	return audio.SamplesToBytes(samples), nil
}

// FrameSamples returns the interleaved samples per packet
func (e *PCMEncoder) FrameSamples() int {
	return pcmFrameFrames * e.channels
}

func (e *PCMEncoder) Codec() string { return "pcm" }

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
