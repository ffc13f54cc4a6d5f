// ABOUTME: Audio decoder package for the stream wire formats
// ABOUTME: Provides Decoder interface and implementations for PCM, Opus
// Package decode turns received wire packets back into int16 samples.
//
// Supports: PCM (16-bit little-endian), Opus
//
// Example:
//
//	decoder, err := decode.New("pcm", format)
//	samples, err := decoder.Decode(packet)
package decode
