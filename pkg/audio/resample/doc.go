// ABOUTME: Sample rate conversion for interleaved int16 buffers
// ABOUTME: Used by the sink to feed 48 kHz Opus from other engine rates
// Package resample converts whole buffers between sample rates by linear
// interpolation, rounding to the nearest sample. Each call is independent,
// so a pool buffer always maps to a fixed output length.
//
//	r := resample.New(44100, 48000, 2)
//	out := r.Resample(samples)
package resample
