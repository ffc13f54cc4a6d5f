// ABOUTME: Tests for the decoders
// ABOUTME: Tests PCM decoding and an Opus round trip through the encoder
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio/encode"
)

func TestNew(t *testing.T) {
	if _, err := New("pcm", audio.DefaultFormat()); err != nil {
		t.Errorf("expected pcm decoder, got %v", err)
	}
	if _, err := New("mp3", audio.DefaultFormat()); err == nil {
		t.Error("expected error for unsupported codec")
	}
}

func TestPCMDecode(t *testing.T) {
	decoder, err := NewPCM(audio.DefaultFormat())
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	// 0x00, 0x01 -> 0x0100 = 256
	// 0x02, 0x03 -> 0x0302 = 770
	output, err := decoder.Decode([]byte{0x00, 0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(output) != 2 || output[0] != 256 || output[1] != 770 {
		t.Errorf("unexpected samples: %v", output)
	}

	if _, err := decoder.Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for odd payload")
	}
}

func TestOpusRoundTrip(t *testing.T) {
	format := audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16}

	enc, err := encode.NewOpus(format)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	dec, err := NewOpus(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	packet, err := enc.Encode(make([]int16, enc.FrameSamples()))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	samples, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(samples) != enc.FrameSamples() {
		t.Errorf("expected %d samples, got %d", enc.FrameSamples(), len(samples))
	}
}
