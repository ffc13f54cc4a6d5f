// ABOUTME: Output device selection and the shared pull queue
// ABOUTME: Queue feeds pull-based backends and reports finished buffers
package output

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
)

// Kind names an output backend
type Kind string

const (
	KindOto      Kind = "oto"
	KindWAV      Kind = "wav"
	KindHeadless Kind = "headless"
)

// Options configures New
type Options struct {
	Kind Kind

	// WAVPath is the destination file for KindWAV.
	WAVPath string

	// Realtime paces the headless device at the sample rate.
	Realtime bool
}

// New creates a device for the requested backend
func New(opts Options) (playback.Device, error) {
	switch opts.Kind {
	case KindOto, "":
		return NewOto(), nil
	case KindWAV:
		if opts.WAVPath == "" {
			return nil, fmt.Errorf("wav output requires a file path")
		}
		return NewWAV(opts.WAVPath), nil
	case KindHeadless:
		return NewHeadless(opts.Realtime), nil
	default:
		return nil, fmt.Errorf("unknown output %q (supported: oto, wav, headless)", opts.Kind)
	}
}

// headerBytes returns the prepared PCM bytes for h
func headerBytes(h *playback.Header) []byte {
	if data, ok := h.Opaque.([]byte); ok {
		return data
	}
	return audio.SamplesToBytes(h.Samples)
}

type queueEntry struct {
	header    *playback.Header
	data      []byte
	pos       int
	loopsLeft int
}

// queue hands out queued buffers as a continuous byte stream
type queue struct {
	mu      sync.Mutex
	done    func(*playback.Header)
	pending []*queueEntry
}

func newQueue(done func(*playback.Header)) *queue {
	return &queue{done: done}
}

func (q *queue) push(h *playback.Header) {
	loops := h.Loops
	if loops < 1 {
		loops = 1
	}

	q.mu.Lock()
	q.pending = append(q.pending, &queueEntry{
		header:    h,
		data:      headerBytes(h),
		loopsLeft: loops,
	})
	q.mu.Unlock()
}

// read fills p from the queued buffers, zero-filling any remainder. It
// returns the number of bytes taken from buffers. Completion callbacks run
// after the lock is released.
func (q *queue) read(p []byte) int {
	var finished []*playback.Header

	q.mu.Lock()
	n := 0
	for n < len(p) && len(q.pending) > 0 {
		e := q.pending[0]
		copied := copy(p[n:], e.data[e.pos:])
		n += copied
		e.pos += copied

		if e.pos >= len(e.data) {
			e.loopsLeft--
			e.pos = 0
			if e.loopsLeft <= 0 {
				q.pending = q.pending[1:]
				finished = append(finished, e.header)
			}
		}
	}
	q.mu.Unlock()

	for i := n; i < len(p); i++ {
		p[i] = 0
	}

	for _, h := range finished {
		q.done(h)
	}
	return n
}

// len returns the number of queued buffers
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// flush completes every queued buffer without playing it
func (q *queue) flush() int {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, e := range pending {
		q.done(e.header)
	}
	return len(pending)
}
