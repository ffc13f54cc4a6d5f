// ABOUTME: Audio encoder package for the stream wire formats
// ABOUTME: Provides Encoder interface and implementations for PCM, Opus
// Package encode turns rendered 16-bit buffers into wire packets.
//
// Supports: PCM (16-bit little-endian), Opus (48 kHz)
//
// Example:
//
//	encoder, err := encode.New("opus", format)
//	packets, err := encode.Packetize(encoder, samples)
package encode
