// ABOUTME: Binary audio frame encoding
// ABOUTME: Frames carry PCM or Opus payloads tagged with their buffer ID
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Frame kinds
const (
	FramePCM  byte = 1
	FrameOpus byte = 2
)

const flagFinal byte = 1

// FrameHeaderSize is the fixed header length preceding every payload
const FrameHeaderSize = 1 + 16 + 4 + 1

// Frame is one binary websocket message
type Frame struct {
	Kind     byte
	BufferID uuid.UUID
	Seq      uint32
	Final    bool
	Payload  []byte
}

// EncodeFrame serializes a frame.
// Binary format: [kind:1][buffer_id:16][seq:4][flags:1][payload:N]
func EncodeFrame(f Frame) []byte {
	out := make([]byte, FrameHeaderSize+len(f.Payload))
	out[0] = f.Kind
	copy(out[1:17], f.BufferID[:])
	binary.BigEndian.PutUint32(out[17:21], f.Seq)
	if f.Final {
		out[21] = flagFinal
	}
	copy(out[FrameHeaderSize:], f.Payload)
	return out
}

// DecodeFrame parses a frame. The payload aliases data.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < FrameHeaderSize {
		return Frame{}, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	kind := data[0]
	if kind != FramePCM && kind != FrameOpus {
		return Frame{}, fmt.Errorf("unknown frame kind: %d", kind)
	}

	var f Frame
	f.Kind = kind
	copy(f.BufferID[:], data[1:17])
	f.Seq = binary.BigEndian.Uint32(data[17:21])
	f.Final = data[21]&flagFinal != 0
	f.Payload = data[FrameHeaderSize:]
	return f, nil
}
