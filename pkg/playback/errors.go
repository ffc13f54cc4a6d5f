// ABOUTME: Errors reported by the buffer pool and its devices
// ABOUTME: DeviceError wraps device failures with the failing operation
package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFreeSlot means every slot is in flight. Recoverable.
	ErrNoFreeSlot = errors.New("no free buffer slot")

	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrShutdownTimeout   = errors.New("timed out waiting for buffers to drain")
	ErrPoolClosed        = errors.New("buffer pool closed")
	ErrPoolNotOpen       = errors.New("buffer pool not open")
)

// DeviceError represents a failure reported by an output device
type DeviceError struct {
	Op  string // "open", "prepare", "write", "unprepare", "close"
	Err error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device %s failed", e.Op)
	}
	return fmt.Sprintf("device %s failed: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is reports every DeviceError as ErrDeviceUnavailable
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

func newDeviceError(op string, err error) *DeviceError {
	return &DeviceError{Op: op, Err: err}
}
