// ABOUTME: Procedural sample generation package
// ABOUTME: Documents the noise table, envelopes, instruments, sequencer and mixer
// Package synth renders short procedural sounds into 16-bit PCM buffers.
//
// Everything is owned by an Engine: the seeded noise table, the stream format
// and the tempo. There is no package-level mutable state, so several engines
// with different seeds or tempos can render side by side.
//
// Three render paths are provided:
//   - RenderTrack: a 16-step pattern, one beat per step, each step rendered by
//     an instrument from the bank (kick, snare, hi-hat, tone stack, noise).
//   - RenderMix: additive synthesis of sound descriptors whose frequency and
//     amplitude follow envelope curves over modulation windows. Phase is
//     accumulated per sample so frequency sweeps stay continuous.
//   - RenderHit and RenderHarmonics: single-instrument previews and the
//     harmonic organ progression.
//
// Rendering is synchronous, single-threaded and allocates only the returned
// buffer. Descriptors and envelopes are validated before rendering starts.
//
// Example:
//
//	engine, err := synth.NewEngine(synth.Config{})
//	track := synth.Track{}
//	for i := range track {
//	    track[i] = synth.Step{Note: 60, Instrument: synth.Kick}
//	}
//	samples := engine.RenderTrack(track)
package synth
