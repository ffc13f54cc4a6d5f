// ABOUTME: Tests for the linear resampler
// ABOUTME: Tests buffer lengths, passthrough and interpolation
package resample

import "testing"

func TestResampleLength(t *testing.T) {
	tests := []struct {
		name        string
		in, out, ch int
		frames      int
		expected    int
	}{
		{"44.1k to 48k", 44100, 48000, 2, 22050, 24000},
		{"48k to 44.1k", 48000, 44100, 2, 24000, 22050},
		{"upsample 2x mono", 8000, 16000, 1, 100, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.in, tt.out, tt.ch)
			out := r.Resample(make([]int16, tt.frames*tt.ch))
			if len(out) != tt.expected*tt.ch {
				t.Errorf("expected %d samples, got %d", tt.expected*tt.ch, len(out))
			}
		})
	}
}

func TestResamplePassthrough(t *testing.T) {
	r := New(48000, 48000, 2)
	if !r.Passthrough() {
		t.Fatal("expected passthrough")
	}

	input := []int16{1, 2, 3, 4}
	out := r.Resample(input)
	input[0] = 99
	if len(out) != 4 || out[0] != 1 || out[3] != 4 {
		t.Errorf("expected independent copy, got %v", out)
	}
}

func TestResampleInterpolates(t *testing.T) {
	r := New(8000, 16000, 1)
	out := r.Resample([]int16{0, 100, 200})

	expected := []int16{0, 50, 100, 150, 200, 200}
	if len(out) != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), len(out))
	}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("sample %d: expected %d, got %d", i, expected[i], out[i])
		}
	}
}

func TestResamplePreservesChannels(t *testing.T) {
	r := New(44100, 48000, 2)
	input := make([]int16, 200)
	for i := 0; i < len(input); i += 2 {
		input[i] = 1000
		input[i+1] = -1000
	}

	for i, s := range r.Resample(input) {
		want := int16(1000)
		if i%2 == 1 {
			want = -1000
		}
		if s != want {
			t.Fatalf("sample %d: expected %d, got %d", i, want, s)
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	if out := New(44100, 48000, 2).Resample(nil); out != nil {
		t.Errorf("expected nil, got %v", out)
	}
}
