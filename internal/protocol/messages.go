// ABOUTME: Sink/listener protocol message type definitions
// ABOUTME: Defines JSON control messages exchanged over the stream websocket
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version spoken by sinks and listeners
const Version = 1

// Message types
const (
	TypeListenerHello   = "listener/hello"
	TypeListenerGoodbye = "listener/goodbye"
	TypeSinkHello       = "sink/hello"
	TypeSinkError       = "sink/error"
	TypeStreamStart     = "stream/start"
	TypeBufferStart     = "buffer/start"
	TypeBufferDone      = "buffer/done"
)

// Codec names
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is a received message whose payload has not been decoded yet
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode marshals a message of the given type
func Encode(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msgType, err)
	}
	return data, nil
}

// Decode parses the envelope of a text message
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("message missing type")
	}
	return env, nil
}

// Into decodes the payload into v
func (e Envelope) Into(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: failed to unmarshal payload: %w", e.Type, err)
	}
	return nil
}

// ListenerHello is sent by listeners to initiate the handshake
type ListenerHello struct {
	ListenerID string   `json:"listener_id"`
	Name       string   `json:"name"`
	Version    int      `json:"version"`
	Codecs     []string `json:"codecs,omitempty"`
}

// SinkHello is the sink's response to listener/hello
type SinkHello struct {
	SinkID  string `json:"sink_id"`
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// SinkError reports a rejected handshake
type SinkError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

// StreamStart notifies the listener of the stream format
type StreamStart struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// BufferStart announces the binary frames of one pool buffer
type BufferStart struct {
	BufferID string `json:"buffer_id"`
	Samples  int    `json:"samples"` // interleaved samples after decoding
	Loops    int    `json:"loops"`
	Frames   int    `json:"frames"` // binary frames that follow
}

// BufferDone acknowledges that a listener finished playing a buffer
type BufferDone struct {
	BufferID string `json:"buffer_id"`
}

// ListenerGoodbye is sent before a listener disconnects
type ListenerGoodbye struct {
	Reason string `json:"reason"`
}
