// ABOUTME: Tests for audio types
// ABOUTME: Tests format helpers and sample conversion functions
package audio

import (
	"math"
	"testing"
	"time"
)

func TestFloatToSample(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected int16
	}{
		{"zero", 0, 0},
		{"full positive", 1, 32767},
		{"full negative", -1, -32767},
		{"half", 0.5, 16383},
		{"clamp over", 4, 32767},
		{"clamp under", -4, -32767},
		{"positive infinity", math.Inf(1), 32767},
		{"negative infinity", math.Inf(-1), -32767},
		{"nan", math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FloatToSample(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSaturatingAdd(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int16
		expected int16
	}{
		{"zero", 0, 0, 0},
		{"simple", 100, -50, 50},
		{"clip positive", 30000, 30000, 32767},
		{"clip negative", -30000, -30000, -32767},
		{"min input", -32768, 0, -32767},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SaturatingAdd(tt.a, tt.b)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSamplesToBytes(t *testing.T) {
	data := SamplesToBytes([]int16{0x0100, -2})
	expected := []byte{0x00, 0x01, 0xFE, 0xFF}

	if len(data) != len(expected) {
		t.Fatalf("expected %d bytes, got %d", len(expected), len(data))
	}
	for i := range expected {
		if data[i] != expected[i] {
			t.Errorf("byte %d: expected 0x%02X, got 0x%02X", i, expected[i], data[i])
		}
	}
}

func TestBytesToSamples(t *testing.T) {
	samples := BytesToSamples([]byte{0x00, 0x01, 0x02, 0x03, 0xFF})

	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0] != 256 {
		t.Errorf("expected first sample 256, got %d", samples[0])
	}
	if samples[1] != 770 {
		t.Errorf("expected second sample 770, got %d", samples[1])
	}
}

func TestFormatWithDefaults(t *testing.T) {
	f := Format{}.WithDefaults()

	if f != DefaultFormat() {
		t.Errorf("expected %+v, got %+v", DefaultFormat(), f)
	}
	if f.FrameSize() != 4 {
		t.Errorf("expected frame size 4, got %d", f.FrameSize())
	}
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"default", DefaultFormat(), false},
		{"zero rate", Format{SampleRate: 0, Channels: 2, BitDepth: 16}, true},
		{"zero channels", Format{SampleRate: 44100, Channels: 0, BitDepth: 16}, true},
		{"24 bit", Format{SampleRate: 44100, Channels: 2, BitDepth: 24}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	f := DefaultFormat()

	d := f.Duration(44100 * 2)
	if d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}
}
