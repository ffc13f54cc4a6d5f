// ABOUTME: Fixed-capacity buffer pool between a producer and a device
// ABOUTME: Claims slots with compare-and-swap and frees them on completion
package playback

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/google/uuid"
)

// Capacity is the number of slots in every pool
const Capacity = 8

// DefaultPollInterval is how often Shutdown checks for drained slots
const DefaultPollInterval = 10 * time.Millisecond

// Config holds pool configuration
type Config struct {
	Format       audio.Format
	PollInterval time.Duration

	// OnComplete is called from the device goroutine after a slot is freed.
	OnComplete func(Submission)
}

// Submission identifies an accepted buffer
type Submission struct {
	ID      uuid.UUID
	Slot    int
	Samples int
	Loops   int
}

// Stats is a snapshot of pool counters
type Stats struct {
	Capacity  int
	Free      int
	InFlight  int
	Submitted uint64
	Completed uint64
	Rejected  uint64
	Skipped   uint64
}

// Pool streams buffers to a Device through Capacity slots
type Pool struct {
	device Device
	config Config
	slots  [Capacity]*Header

	free atomic.Int32

	// submitMu serializes producers; completion never takes it.
	submitMu sync.Mutex
	next     int

	opened   atomic.Bool
	closed   atomic.Bool
	shutdown atomic.Bool

	submitted atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
	skipped   atomic.Uint64
}

// NewPool creates a pool for the given device
func NewPool(device Device, config Config) *Pool {
	config.Format = config.Format.WithDefaults()
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	p := &Pool{
		device: device,
		config: config,
	}
	for i := range p.slots {
		p.slots[i] = &Header{Slot: i}
	}
	p.free.Store(Capacity)
	return p
}

// Open opens the underlying device
func (p *Pool) Open() error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if !p.opened.CompareAndSwap(false, true) {
		return nil
	}

	if err := p.device.Open(p.config.Format, p.complete); err != nil {
		p.opened.Store(false)
		return newDeviceError("open", err)
	}

	log.Printf("Playback pool opened: %dHz, %d channels, %d slots",
		p.config.Format.SampleRate, p.config.Format.Channels, Capacity)
	return nil
}

// Format returns the sample format the device was opened with
func (p *Pool) Format() audio.Format {
	return p.config.Format
}

// Free returns the number of slots available for Submit
func (p *Pool) Free() int {
	return int(p.free.Load())
}

// Submit hands samples to the device, played loops times. It never blocks
// and returns ErrNoFreeSlot when every slot is in flight. The pool owns
// samples until the submission completes.
func (p *Pool) Submit(samples []int16, loops int) (Submission, error) {
	if p.closed.Load() {
		return Submission{}, ErrPoolClosed
	}
	if !p.opened.Load() {
		return Submission{}, ErrPoolNotOpen
	}
	if loops < 1 {
		loops = 1
	}

	if !p.claim() {
		p.rejected.Add(1)
		return Submission{}, ErrNoFreeSlot
	}

	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	// A claim made before Shutdown set closed holds its poll open until
	// this returns the slot.
	if p.closed.Load() {
		p.free.Add(1)
		return Submission{}, ErrPoolClosed
	}

	h := p.nextIdle()
	if h == nil {
		// Only reachable if a device completed a slot it was never given.
		p.free.Add(1)
		p.rejected.Add(1)
		return Submission{}, ErrNoFreeSlot
	}

	if h.loadState() == slotPrepared {
		if err := p.device.Unprepare(h); err != nil {
			log.Printf("Failed to unprepare slot %d: %v", h.Slot, err)
		}
		h.storeState(slotFree)
	}

	h.ID = uuid.New()
	h.Samples = samples
	h.Loops = loops
	h.Opaque = nil

	if err := p.device.Prepare(h); err != nil {
		p.free.Add(1)
		return Submission{}, newDeviceError("prepare", err)
	}

	// Submitted must be visible before Write: done may fire before it returns.
	h.storeState(slotSubmitted)
	if err := p.device.Write(h); err != nil {
		h.storeState(slotPrepared)
		p.free.Add(1)
		return Submission{}, newDeviceError("write", err)
	}

	p.submitted.Add(1)
	return Submission{
		ID:      h.ID,
		Slot:    h.Slot,
		Samples: len(samples),
		Loops:   loops,
	}, nil
}

// claim takes one unit from the free counter only if it is positive
func (p *Pool) claim() bool {
	for {
		n := p.free.Load()
		if n <= 0 {
			return false
		}
		if p.free.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// nextIdle returns the next slot in round-robin order that is not in flight
func (p *Pool) nextIdle() *Header {
	for i := 0; i < Capacity; i++ {
		h := p.slots[p.next]
		p.next = (p.next + 1) % Capacity

		if h.loadState() == slotSubmitted {
			p.skipped.Add(1)
			log.Printf("Slot %d still playing, completions arrived out of order", h.Slot)
			continue
		}
		return h
	}
	return nil
}

// complete is the device's done callback
func (p *Pool) complete(h *Header) {
	if h == nil {
		return
	}
	// Read before freeing: the producer may reuse the slot immediately after.
	sub := Submission{
		ID:      h.ID,
		Slot:    h.Slot,
		Samples: len(h.Samples),
		Loops:   h.Loops,
	}
	if !h.casState(slotSubmitted, slotPrepared) {
		log.Printf("Ignoring completion for slot %d in state %s", h.Slot, h.loadState())
		return
	}
	p.completed.Add(1)
	p.free.Add(1)

	if p.config.OnComplete != nil {
		p.config.OnComplete(sub)
	}
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	free := p.Free()
	return Stats{
		Capacity:  Capacity,
		Free:      free,
		InFlight:  Capacity - free,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Skipped:   p.skipped.Load(),
	}
}

// Shutdown stops accepting buffers, waits for every slot to complete, then
// releases the slots and closes the device. If ctx ends first it returns
// ErrShutdownTimeout and leaves the device open.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.shutdown.Load() {
		return ErrPoolClosed
	}
	p.closed.Store(true)

	if !p.opened.Load() {
		p.shutdown.Store(true)
		return nil
	}

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for p.Free() < Capacity {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %d of %d buffers still playing: %v",
				ErrShutdownTimeout, Capacity-p.Free(), Capacity, ctx.Err())
		case <-ticker.C:
		}
	}

	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	var firstErr error
	for _, h := range p.slots {
		if h.loadState() != slotPrepared {
			continue
		}
		if err := p.device.Unprepare(h); err != nil && firstErr == nil {
			firstErr = newDeviceError("unprepare", err)
		}
		h.storeState(slotFree)
		h.Samples = nil
	}

	if err := p.device.Close(); err != nil && firstErr == nil {
		firstErr = newDeviceError("close", err)
	}
	p.shutdown.Store(true)

	stats := p.Stats()
	log.Printf("Playback pool closed: %d submitted, %d completed, %d rejected",
		stats.Submitted, stats.Completed, stats.Rejected)
	return firstErr
}
