// ABOUTME: Headless output device that plays into nothing
// ABOUTME: Drains buffers immediately or paced at the sample rate
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
)

const headlessTick = 10 * time.Millisecond

// Headless consumes buffers without audio hardware. In realtime mode it
// pulls one tick's worth of frames every 10ms, otherwise it drains as fast
// as buffers arrive.
type Headless struct {
	realtime bool

	mu     sync.Mutex
	format audio.Format
	queue  *queue
	wake   chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
	bytes  int
}

// NewHeadless creates a headless output
func NewHeadless(realtime bool) *Headless {
	return &Headless{realtime: realtime}
}

// Open starts the consumer goroutine
func (h *Headless) Open(format audio.Format, done func(*playback.Header)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stop != nil {
		return fmt.Errorf("headless output already open")
	}

	h.format = format
	h.queue = newQueue(done)
	h.wake = make(chan struct{}, 1)
	h.stop = make(chan struct{})

	h.wg.Add(1)
	go h.run()
	return nil
}

func (h *Headless) run() {
	defer h.wg.Done()

	chunk := 64 * 1024
	if h.realtime {
		chunk = int(headlessTick.Seconds()*float64(h.format.SampleRate)) * h.format.FrameSize()
	}
	buf := make([]byte, chunk)

	var tick <-chan time.Time
	if h.realtime {
		ticker := time.NewTicker(headlessTick)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if h.realtime {
			select {
			case <-h.stop:
				return
			case <-tick:
			}
			h.consume(buf)
			continue
		}

		select {
		case <-h.stop:
			return
		case <-h.wake:
		}
		for h.consume(buf) > 0 {
		}
	}
}

func (h *Headless) consume(buf []byte) int {
	n := h.queue.read(buf)
	h.mu.Lock()
	h.bytes += n
	h.mu.Unlock()
	return n
}

// Prepare converts the header's samples to PCM bytes
func (h *Headless) Prepare(hdr *playback.Header) error {
	hdr.Opaque = audio.SamplesToBytes(hdr.Samples)
	return nil
}

// Unprepare releases the header's PCM bytes
func (h *Headless) Unprepare(hdr *playback.Header) error {
	hdr.Opaque = nil
	return nil
}

// Write queues a header and wakes the consumer
func (h *Headless) Write(hdr *playback.Header) error {
	h.mu.Lock()
	q := h.queue
	wake := h.wake
	h.mu.Unlock()

	if q == nil {
		return fmt.Errorf("headless output not open")
	}
	q.push(hdr)

	select {
	case wake <- struct{}{}:
	default:
	}
	return nil
}

// Played returns the number of frames consumed so far
func (h *Headless) Played() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.format.FrameSize() == 0 {
		return 0
	}
	return h.bytes / h.format.FrameSize()
}

// Close stops the consumer and completes anything still queued
func (h *Headless) Close() error {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	q := h.queue
	h.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	h.wg.Wait()

	// Anything still queued is reported so no slot is left in flight.
	q.flush()
	return nil
}
