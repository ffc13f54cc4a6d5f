// ABOUTME: Tests for the streaming buffer pool
// ABOUTME: Tests backpressure, completion ordering, failures and shutdown
package playback_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/internal/playbacktest"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
)

func newOpenPool(t *testing.T, device *playbacktest.Device) *playback.Pool {
	t.Helper()

	pool := playback.NewPool(device, playback.Config{Format: audio.DefaultFormat()})
	if err := pool.Open(); err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	return pool
}

func fill(t *testing.T, pool *playback.Pool, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		if _, err := pool.Submit(make([]int16, 64), 1); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
}

func TestSubmitBackpressure(t *testing.T) {
	device := playbacktest.NewDevice()
	pool := newOpenPool(t, device)

	fill(t, pool, playback.Capacity)
	if pool.Free() != 0 {
		t.Errorf("expected 0 free slots, got %d", pool.Free())
	}

	if _, err := pool.Submit(make([]int16, 64), 1); !errors.Is(err, playback.ErrNoFreeSlot) {
		t.Fatalf("expected ErrNoFreeSlot, got %v", err)
	}

	if n := device.Complete(1); n != 1 {
		t.Fatalf("expected 1 completion, got %d", n)
	}
	if _, err := pool.Submit(make([]int16, 64), 1); err != nil {
		t.Fatalf("expected submit after completion to succeed, got %v", err)
	}
	if _, err := pool.Submit(make([]int16, 64), 1); !errors.Is(err, playback.ErrNoFreeSlot) {
		t.Fatalf("expected ErrNoFreeSlot, got %v", err)
	}

	stats := pool.Stats()
	if stats.Submitted != playback.Capacity+1 {
		t.Errorf("expected %d submitted, got %d", playback.Capacity+1, stats.Submitted)
	}
	if stats.Rejected != 2 {
		t.Errorf("expected 2 rejected, got %d", stats.Rejected)
	}
	if stats.InFlight != playback.Capacity {
		t.Errorf("expected %d in flight, got %d", playback.Capacity, stats.InFlight)
	}
}

func TestSubmitRequiresOpen(t *testing.T) {
	pool := playback.NewPool(playbacktest.NewDevice(), playback.Config{})

	if _, err := pool.Submit(make([]int16, 4), 1); !errors.Is(err, playback.ErrPoolNotOpen) {
		t.Errorf("expected ErrPoolNotOpen, got %v", err)
	}
}

func TestSubmitDefaultsLoops(t *testing.T) {
	device := playbacktest.NewDevice()
	pool := newOpenPool(t, device)

	sub, err := pool.Submit(make([]int16, 64), 0)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if sub.Loops != 1 {
		t.Errorf("expected 1 loop, got %d", sub.Loops)
	}
	if sub.Samples != 64 {
		t.Errorf("expected 64 samples, got %d", sub.Samples)
	}
	if device.Frames() != 32 {
		t.Errorf("expected 32 frames written, got %d", device.Frames())
	}
}

func TestSubmissionIDsUnique(t *testing.T) {
	device := playbacktest.NewDevice()
	pool := newOpenPool(t, device)

	seen := make(map[string]bool)
	for i := 0; i < playback.Capacity; i++ {
		sub, err := pool.Submit(make([]int16, 4), 1)
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		if seen[sub.ID.String()] {
			t.Fatalf("duplicate submission id %s", sub.ID)
		}
		seen[sub.ID.String()] = true
		if sub.Slot != i {
			t.Errorf("expected slot %d, got %d", i, sub.Slot)
		}
	}
}

func TestConcurrentCompletions(t *testing.T) {
	device := playbacktest.NewDevice()
	pool := newOpenPool(t, device)

	const rounds = 50
	for r := 0; r < rounds; r++ {
		fill(t, pool, playback.Capacity)
		if n := device.CompleteConcurrently(); n != playback.Capacity {
			t.Fatalf("round %d: expected %d completions, got %d", r, playback.Capacity, n)
		}
		if pool.Free() != playback.Capacity {
			t.Fatalf("round %d: expected all slots free, got %d", r, pool.Free())
		}
	}

	if got := pool.Stats().Completed; got != rounds*playback.Capacity {
		t.Errorf("expected %d completed, got %d", rounds*playback.Capacity, got)
	}
}

func TestOutOfOrderCompletion(t *testing.T) {
	device := playbacktest.NewDevice()
	pool := newOpenPool(t, device)

	fill(t, pool, playback.Capacity)
	if !device.CompleteSlot(3) {
		t.Fatal("expected slot 3 to be pending")
	}

	sub, err := pool.Submit(make([]int16, 64), 1)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if sub.Slot != 3 {
		t.Errorf("expected reuse of slot 3, got %d", sub.Slot)
	}
	if got := pool.Stats().Skipped; got != 3 {
		t.Errorf("expected 3 skipped slots, got %d", got)
	}
}

func TestSlotReprepared(t *testing.T) {
	device := playbacktest.NewDevice()
	pool := newOpenPool(t, device)

	fill(t, pool, playback.Capacity)
	device.Complete(playback.Capacity)
	fill(t, pool, 1)

	if device.Prepares() != playback.Capacity+1 {
		t.Errorf("expected %d prepares, got %d", playback.Capacity+1, device.Prepares())
	}
	if device.Unprepares() != 1 {
		t.Errorf("expected 1 unprepare, got %d", device.Unprepares())
	}
}

func TestWriteFailureRollsBack(t *testing.T) {
	device := playbacktest.NewDevice()
	pool := newOpenPool(t, device)
	device.SetWriteError(playbacktest.ErrInjected)

	_, err := pool.Submit(make([]int16, 64), 1)
	if !errors.Is(err, playback.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if !errors.Is(err, playbacktest.ErrInjected) {
		t.Errorf("expected wrapped cause, got %v", err)
	}

	var devErr *playback.DeviceError
	if !errors.As(err, &devErr) || devErr.Op != "write" {
		t.Errorf("expected write DeviceError, got %v", err)
	}
	if pool.Free() != playback.Capacity {
		t.Errorf("expected claim to be returned, got %d free", pool.Free())
	}

	device.SetWriteError(nil)
	fill(t, pool, playback.Capacity)
}

func TestOpenFailure(t *testing.T) {
	device := playbacktest.NewDevice()
	device.OpenErr = playbacktest.ErrInjected
	pool := playback.NewPool(device, playback.Config{})

	err := pool.Open()
	if !errors.Is(err, playback.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestOnComplete(t *testing.T) {
	device := playbacktest.NewDevice()
	var completed atomic.Int32
	pool := playback.NewPool(device, playback.Config{
		OnComplete: func(sub playback.Submission) {
			completed.Add(1)
		},
	})
	if err := pool.Open(); err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}

	fill(t, pool, 3)
	device.Complete(3)

	if completed.Load() != 3 {
		t.Errorf("expected 3 callbacks, got %d", completed.Load())
	}
}

func TestShutdownDrains(t *testing.T) {
	device := playbacktest.NewDevice()
	pool := newOpenPool(t, device)
	fill(t, pool, 2)

	go func() {
		time.Sleep(30 * time.Millisecond)
		device.Complete(2)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !device.Closed() {
		t.Error("expected device to be closed")
	}
	if device.Unprepares() != 2 {
		t.Errorf("expected 2 unprepares, got %d", device.Unprepares())
	}

	if _, err := pool.Submit(make([]int16, 4), 1); !errors.Is(err, playback.ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
	if err := pool.Shutdown(ctx); !errors.Is(err, playback.ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed on second shutdown, got %v", err)
	}
}

func TestShutdownTimeout(t *testing.T) {
	device := playbacktest.NewDevice()
	pool := newOpenPool(t, device)
	fill(t, pool, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := pool.Shutdown(ctx); !errors.Is(err, playback.ErrShutdownTimeout) {
		t.Fatalf("expected ErrShutdownTimeout, got %v", err)
	}
	if device.Closed() {
		t.Error("expected device to stay open after timeout")
	}
	if _, err := pool.Submit(make([]int16, 4), 1); !errors.Is(err, playback.ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed while draining, got %v", err)
	}

	device.Complete(1)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Errorf("expected retried shutdown to succeed, got %v", err)
	}
	if !device.Closed() {
		t.Error("expected device to be closed")
	}
}

func TestShutdownRacingSubmit(t *testing.T) {
	for i := 0; i < 500; i++ {
		device := playbacktest.NewDevice()
		pool := playback.NewPool(device, playback.Config{
			Format:       audio.DefaultFormat(),
			PollInterval: time.Millisecond,
		})
		if err := pool.Open(); err != nil {
			t.Fatalf("failed to open pool: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		start := make(chan struct{})
		submitted := make(chan error, 1)
		shutdown := make(chan error, 1)

		go func() {
			<-start
			_, err := pool.Submit(make([]int16, 64), 1)
			submitted <- err
		}()
		go func() {
			<-start
			shutdown <- pool.Shutdown(ctx)
		}()
		close(start)

		if err := <-submitted; err != nil && !errors.Is(err, playback.ErrPoolClosed) {
			t.Fatalf("iteration %d: unexpected submit error: %v", i, err)
		}
		device.Complete(playback.Capacity)

		if err := <-shutdown; err != nil {
			t.Fatalf("iteration %d: shutdown failed: %v", i, err)
		}
		cancel()

		if !device.Closed() {
			t.Fatalf("iteration %d: expected device closed", i)
		}
		if n := device.PendingAtClose(); n != 0 {
			t.Fatalf("iteration %d: device closed with %d buffers in flight", i, n)
		}
		if pool.Free() != playback.Capacity {
			t.Fatalf("iteration %d: expected all slots free, got %d", i, pool.Free())
		}
	}
}

func TestProducerWithAsyncDevice(t *testing.T) {
	device := playbacktest.NewDevice()
	device.AutoComplete = true
	pool := newOpenPool(t, device)

	const total = 500
	accepted := 0
	for accepted < total {
		_, err := pool.Submit(make([]int16, 16), 1)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, playback.ErrNoFreeSlot):
			time.Sleep(time.Millisecond)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
		if inFlight := pool.Stats().InFlight; inFlight > playback.Capacity {
			t.Fatalf("in-flight count %d exceeds capacity", inFlight)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if got := pool.Stats().Completed; got != total {
		t.Errorf("expected %d completed, got %d", total, got)
	}
}

func TestDeviceErrorMessage(t *testing.T) {
	err := &playback.DeviceError{Op: "write", Err: playbacktest.ErrInjected}
	if err.Error() != "device write failed: injected device failure" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	bare := &playback.DeviceError{Op: "open"}
	if bare.Error() != "device open failed" {
		t.Errorf("unexpected message: %q", bare.Error())
	}
}
