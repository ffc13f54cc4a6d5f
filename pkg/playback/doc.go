// ABOUTME: Streaming buffer pool package documentation
// ABOUTME: Describes the slot lifecycle shared by producers and devices
// Package playback streams rendered sample buffers to an output device
// through a fixed pool of slots.
//
// A producer renders a buffer, calls Submit and moves on. The device plays
// the buffer asynchronously and reports completion from its own goroutine,
// which returns the slot to the pool. Submit never blocks: when every slot
// is in flight it fails with ErrNoFreeSlot and the caller decides whether to
// retry or drop.
//
// Example:
//
//	pool := playback.NewPool(device, playback.Config{Format: audio.DefaultFormat()})
//	if err := pool.Open(); err != nil {
//		return err
//	}
//	defer pool.Shutdown(ctx)
//
//	sub, err := pool.Submit(samples, 1)
package playback
