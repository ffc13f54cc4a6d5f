// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all audio encoders and buffer packetizing
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
)

// Encoder encodes interleaved int16 samples into wire packets
type Encoder interface {
	// Encode converts at most FrameSamples samples to one packet
	Encode(samples []int16) ([]byte, error)

	// FrameSamples is the number of interleaved samples per packet
	FrameSamples() int

	// Codec names the wire format
	Codec() string

	// Close releases encoder resources
	Close() error
}

// New creates an encoder for the named codec
func New(codec string, format audio.Format) (Encoder, error) {
	switch codec {
	case "pcm", "":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s (supported: pcm, opus)", codec)
	}
}

// Packetize splits a whole buffer into encoded packets
func Packetize(enc Encoder, samples []int16) ([][]byte, error) {
	step := enc.FrameSamples()
	if step <= 0 {
		return nil, fmt.Errorf("invalid frame size: %d", step)
	}

	packets := make([][]byte, 0, (len(samples)+step-1)/step)
	for i := 0; i < len(samples); i += step {
		end := min(i+step, len(samples))
		packet, err := enc.Encode(samples[i:end])
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", len(packets), err)
		}
		packets = append(packets, packet)
	}
	return packets, nil
}
