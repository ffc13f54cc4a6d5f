// ABOUTME: Output device contract and the buffer header handed to devices
// ABOUTME: Devices play headers asynchronously and report completion
package playback

import (
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/google/uuid"
)

// Device is an asynchronous sample sink.
//
// Write must not block for the duration of playback. After the header has
// been played Loops times the device calls the done callback given to Open,
// from whatever goroutine it uses internally. Implementations must call done
// exactly once per successful Write.
type Device interface {
	Open(format audio.Format, done func(*Header)) error
	Prepare(h *Header) error
	Unprepare(h *Header) error
	Write(h *Header) error
	Close() error
}

type slotState int32

const (
	slotFree slotState = iota
	slotPrepared
	slotSubmitted
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotPrepared:
		return "prepared"
	case slotSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Header describes one buffer occupying a pool slot
type Header struct {
	ID      uuid.UUID
	Slot    int
	Samples []int16
	Loops   int

	// Opaque is reserved for the device between Prepare and Unprepare.
	Opaque any

	state atomic.Int32
}

func (h *Header) loadState() slotState {
	return slotState(h.state.Load())
}

func (h *Header) casState(from, to slotState) bool {
	return h.state.CompareAndSwap(int32(from), int32(to))
}

func (h *Header) storeState(s slotState) {
	h.state.Store(int32(s))
}

// Frames returns the number of sample frames in the buffer
func (h *Header) Frames(channels int) int {
	if channels <= 0 {
		return 0
	}
	return len(h.Samples) / channels
}
