// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit little-endian PCM to int16 samples
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct{}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}
	return &PCMDecoder{}, nil
}

// Decode converts PCM bytes to int16 samples
func (d *PCMDecoder) Decode(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("odd PCM payload length: %d", len(data))
	}
	return audio.BytesToSamples(data), nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
