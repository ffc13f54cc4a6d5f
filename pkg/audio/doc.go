// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and 16-bit PCM sample conversion helpers
// Package audio provides the PCM types shared by the renderer and the outputs.
//
// This package defines:
//   - Format: the fixed stream format of an engine (sample rate, channels, bit depth)
//   - Sample helpers: float to 16-bit conversion with symmetric clamping,
//     saturating addition for additive mixing, and little-endian packing
//
// All rendered buffers are interleaved signed 16-bit samples in the range
// [-32767, 32767]. -32768 is never produced so that clamping stays symmetric.
//
// Example:
//
//	format := audio.Format{
//	    SampleRate: 44100,
//	    Channels:   2,
//	    BitDepth:   16,
//	}
//
//	s := audio.FloatToSample(0.5)
//	data := audio.SamplesToBytes([]int16{s, s})
package audio
