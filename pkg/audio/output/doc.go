// ABOUTME: Audio output package for playing rendered buffers
// ABOUTME: Provides oto, WAV file and headless playback devices
// Package output provides playback.Device implementations.
//
// Oto plays through the system audio device, WAV encodes buffers to a file,
// and Headless consumes buffers without producing sound. All of them report
// completion asynchronously.
//
// Example:
//
//	device := output.NewOto()
//	pool := playback.NewPool(device, playback.Config{Format: format})
//	err := pool.Open()
package output
