// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for all audio decoders
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
)

// Decoder decodes wire packets to interleaved int16 samples
type Decoder interface {
	// Decode converts one packet to PCM samples
	Decode(data []byte) ([]int16, error)

	// Close releases decoder resources
	Close() error
}

// New creates a decoder for the named codec
func New(codec string, format audio.Format) (Decoder, error) {
	switch codec {
	case "pcm", "":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s (supported: pcm, opus)", codec)
	}
}
