// ABOUTME: Manually driven playback device for tests
// ABOUTME: Records writes and completes buffers only when told to
package playbacktest

import (
	"errors"
	"sync"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
)

// ErrInjected is a convenience error for failure injection
var ErrInjected = errors.New("injected device failure")

// Device implements playback.Device. Buffers stay in flight until Complete
// or CompleteSlot is called, unless AutoComplete is set.
type Device struct {
	mu sync.Mutex

	format  audio.Format
	done    func(*playback.Header)
	pending []*playback.Header

	opened     bool
	closed     bool
	writes     int
	prepares   int
	unprepares int
	frames     int

	pendingAtClose int

	// AutoComplete completes every write from a new goroutine.
	AutoComplete bool

	OpenErr    error
	PrepareErr error
	WriteErr   error
	CloseErr   error
}

// NewDevice creates a manual device
func NewDevice() *Device {
	return &Device{}
}

func (d *Device) Open(format audio.Format, done func(*playback.Header)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.format = format
	d.done = done
	d.opened = true
	return nil
}

func (d *Device) Prepare(h *playback.Header) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.PrepareErr != nil {
		return d.PrepareErr
	}
	d.prepares++
	return nil
}

func (d *Device) Unprepare(h *playback.Header) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.unprepares++
	return nil
}

func (d *Device) Write(h *playback.Header) error {
	d.mu.Lock()
	if d.WriteErr != nil {
		err := d.WriteErr
		d.mu.Unlock()
		return err
	}
	d.writes++
	d.frames += h.Frames(d.format.Channels) * h.Loops
	auto := d.AutoComplete
	done := d.done
	if !auto {
		d.pending = append(d.pending, h)
	}
	d.mu.Unlock()

	if auto {
		go done(h)
	}
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CloseErr != nil {
		return d.CloseErr
	}
	d.closed = true
	d.pendingAtClose = len(d.pending)
	return nil
}

// Complete finishes up to n of the oldest pending buffers on the calling
// goroutine and returns how many were completed.
func (d *Device) Complete(n int) int {
	d.mu.Lock()
	if n > len(d.pending) {
		n = len(d.pending)
	}
	batch := append([]*playback.Header(nil), d.pending[:n]...)
	d.pending = d.pending[n:]
	done := d.done
	d.mu.Unlock()

	for _, h := range batch {
		done(h)
	}
	return len(batch)
}

// CompleteConcurrently finishes every pending buffer, each from its own
// goroutine, and waits for all callbacks to return.
func (d *Device) CompleteConcurrently() int {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	done := d.done
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range batch {
		wg.Add(1)
		go func(h *playback.Header) {
			defer wg.Done()
			done(h)
		}(h)
	}
	wg.Wait()
	return len(batch)
}

// CompleteSlot finishes the pending buffer in the given slot, out of order
func (d *Device) CompleteSlot(slot int) bool {
	d.mu.Lock()
	var h *playback.Header
	for i, p := range d.pending {
		if p.Slot == slot {
			h = p
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
	done := d.done
	d.mu.Unlock()

	if h == nil {
		return false
	}
	done(h)
	return true
}

// Pending returns the number of buffers awaiting completion
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Writes returns the number of successful writes
func (d *Device) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// Frames returns the total frames written, counting loops
func (d *Device) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Prepares returns how many times Prepare succeeded
func (d *Device) Prepares() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prepares
}

// Unprepares returns how many times Unprepare was called
func (d *Device) Unprepares() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unprepares
}

// Opened reports whether Open succeeded
func (d *Device) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Closed reports whether Close succeeded
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// PendingAtClose returns how many buffers were still in flight when Close
// succeeded
func (d *Device) PendingAtClose() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingAtClose
}

// SetWriteError changes the error returned by Write
func (d *Device) SetWriteError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WriteErr = err
}
