// ABOUTME: Opus audio encoder
// ABOUTME: Encodes 20ms int16 frames to Opus packets
package encode

import (
	"fmt"
	"log"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// OpusSampleRate is the only sample rate streamed as Opus
const OpusSampleRate = 48000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int // samples per channel per frame
}

// NewOpus creates a new Opus encoder
func NewOpus(format audio.Format) (Encoder, error) {
	if format.SampleRate != OpusSampleRate {
		return nil, fmt.Errorf("opus streaming requires %d Hz, got %d", OpusSampleRate, format.SampleRate)
	}

	// Create encoder with AppAudio mode for music
	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	// Set bitrate (128 kbps for stereo, 64 kbps for mono)
	bitrate := 64000 * format.Channels
	if err := encoder.SetBitrate(bitrate); err != nil {
		log.Printf("Warning: Failed to set Opus bitrate: %v", err)
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		frameSize:  format.SampleRate / 50, // 20ms frame
	}, nil
}

// Encode converts int16 samples to one Opus packet. A short final frame is
// padded with silence.
func (e *OpusEncoder) Encode(samples []int16) ([]byte, error) {
	pcm := samples
	if len(pcm) < e.FrameSamples() {
		pcm = make([]int16, e.FrameSamples())
		copy(pcm, samples)
	}

	data := make([]byte, 4000) // Max Opus packet size
	n, err := e.encoder.Encode(pcm, data)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	return data[:n], nil
}

// FrameSamples returns the interleaved samples per 20ms frame
func (e *OpusEncoder) FrameSamples() int {
	return e.frameSize * e.channels
}

func (e *OpusEncoder) Codec() string { return "opus" }

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
