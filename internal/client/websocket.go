// ABOUTME: WebSocket client connecting a listener to a synth sink
// ABOUTME: Handles the handshake, reassembles buffers from frames, and sends acks
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/internal/discovery"
	"github.com/Resonate-Protocol/resonate-synth/internal/protocol"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio/decode"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrRejected is wrapped by Connect when the sink answers with sink/error
var ErrRejected = errors.New("sink rejected listener")

// Config holds client configuration
type Config struct {
	// ServerAddr is the sink's host:port.
	ServerAddr string
	Path       string
	ListenerID string
	Name       string
	Codecs     []string
}

// Client represents a WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// Buffers delivers reassembled, decoded buffers in arrival order.
	Buffers chan Buffer

	sink    protocol.SinkHello
	stream  protocol.StreamStart
	decoder decode.Decoder
	partial map[uuid.UUID]*assembly

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// Buffer is one pool buffer received from the sink
type Buffer struct {
	ID      uuid.UUID
	Samples []int16
	Loops   int
}

type assembly struct {
	start   protocol.BufferStart
	samples []int16
	next    uint32
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}
	if config.ListenerID == "" {
		config.ListenerID = uuid.New().String()
	}
	if config.Name == "" {
		config.Name = "synth-listener"
	}
	if len(config.Codecs) == 0 {
		config.Codecs = []string{protocol.CodecPCM, protocol.CodecOpus}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:  config,
		Buffers: make(chan Buffer, 16),
		partial: make(map[uuid.UUID]*assembly),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Discover browses mDNS until a sink appears or ctx ends
func Discover(ctx context.Context) (*discovery.SinkInfo, error) {
	manager := discovery.NewManager(discovery.Config{})
	defer manager.Stop()

	if err := manager.Browse(); err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}

	select {
	case sink := <-manager.Sinks():
		return sink, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no sink discovered: %w", ctx.Err())
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake sends listener/hello and waits for sink/hello and stream/start
func (c *Client) handshake() error {
	hello := protocol.ListenerHello{
		ListenerID: c.config.ListenerID,
		Name:       c.config.Name,
		Version:    protocol.Version,
		Codecs:     c.config.Codecs,
	}
	if err := c.sendJSON(protocol.TypeListenerHello, hello); err != nil {
		return fmt.Errorf("failed to send listener/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})

	env, err := c.readEnvelope()
	if err != nil {
		return fmt.Errorf("failed to read sink/hello: %w", err)
	}
	if env.Type == protocol.TypeSinkError {
		var sinkErr protocol.SinkError
		env.Into(&sinkErr)
		return fmt.Errorf("%w: %s: %s", ErrRejected, sinkErr.Code, sinkErr.Message)
	}
	if env.Type != protocol.TypeSinkHello {
		return fmt.Errorf("expected sink/hello, got %s", env.Type)
	}
	if err := env.Into(&c.sink); err != nil {
		return err
	}

	env, err = c.readEnvelope()
	if err != nil {
		return fmt.Errorf("failed to read stream/start: %w", err)
	}
	if env.Type != protocol.TypeStreamStart {
		return fmt.Errorf("expected stream/start, got %s", env.Type)
	}
	if err := env.Into(&c.stream); err != nil {
		return err
	}

	dec, err := decode.New(c.stream.Codec, c.Format())
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	c.decoder = dec

	log.Printf("Handshake complete with sink %s (%s, %d Hz, %d ch)",
		c.sink.Name, c.stream.Codec, c.stream.SampleRate, c.stream.Channels)
	return nil
}

func (c *Client) readEnvelope() (protocol.Envelope, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	if kind != websocket.TextMessage {
		return protocol.Envelope{}, fmt.Errorf("expected text message, got kind %d", kind)
	}
	return protocol.Decode(data)
}

// Format returns the stream format announced by the sink
func (c *Client) Format() audio.Format {
	return audio.Format{
		SampleRate: c.stream.SampleRate,
		Channels:   c.stream.Channels,
		BitDepth:   c.stream.BitDepth,
	}
}

// SinkName returns the name announced by the sink
func (c *Client) SinkName() string {
	return c.sink.Name
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Client) sendJSON(msgType string, payload interface{}) error {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Ack reports that a buffer finished playing
func (c *Client) Ack(id uuid.UUID) error {
	return c.sendJSON(protocol.TypeBufferDone, protocol.BufferDone{BufferID: id.String()})
}

// Goodbye tells the sink the listener is leaving
func (c *Client) Goodbye(reason string) error {
	return c.sendJSON(protocol.TypeListenerGoodbye, protocol.ListenerGoodbye{Reason: reason})
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()
	defer close(c.Buffers)
	defer c.decoder.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				log.Printf("Read error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		}
	}
}

// handleBinaryMessage appends one frame to its buffer
func (c *Client) handleBinaryMessage(data []byte) {
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		log.Printf("Invalid binary message: %v", err)
		return
	}

	a, ok := c.partial[frame.BufferID]
	if !ok {
		log.Printf("Frame for unknown buffer %s", frame.BufferID)
		return
	}
	if frame.Seq != a.next {
		log.Printf("Buffer %s: expected frame %d, got %d", frame.BufferID, a.next, frame.Seq)
	}
	a.next = frame.Seq + 1

	samples, err := c.decoder.Decode(frame.Payload)
	if err != nil {
		log.Printf("Buffer %s: failed to decode frame %d: %v", frame.BufferID, frame.Seq, err)
	} else {
		a.samples = append(a.samples, samples...)
	}

	if frame.Final {
		delete(c.partial, frame.BufferID)
		c.deliver(frame.BufferID, a)
	}
}

// deliver trims codec padding and hands the buffer to the consumer
func (c *Client) deliver(id uuid.UUID, a *assembly) {
	samples := a.samples
	switch {
	case len(samples) > a.start.Samples:
		samples = samples[:a.start.Samples]
	case len(samples) < a.start.Samples:
		samples = append(samples, make([]int16, a.start.Samples-len(samples))...)
	}

	select {
	case c.Buffers <- Buffer{ID: id, Samples: samples, Loops: a.start.Loops}:
	case <-c.ctx.Done():
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch env.Type {
	case protocol.TypeBufferStart:
		var start protocol.BufferStart
		if err := env.Into(&start); err != nil {
			log.Printf("Invalid buffer/start: %v", err)
			return
		}
		id, err := uuid.Parse(start.BufferID)
		if err != nil {
			log.Printf("Invalid buffer ID: %q", start.BufferID)
			return
		}
		a := &assembly{start: start, samples: make([]int16, 0, start.Samples)}
		if start.Frames == 0 {
			c.deliver(id, a)
			return
		}
		c.partial[id] = a

	case protocol.TypeSinkError:
		var sinkErr protocol.SinkError
		env.Into(&sinkErr)
		log.Printf("Sink error: %s: %s", sinkErr.Code, sinkErr.Message)

	default:
		log.Printf("Unknown message type: %s", env.Type)
	}
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
