// ABOUTME: Network sink that plays pool buffers through websocket listeners
// ABOUTME: Implements playback.Device, completing buffers once every listener acks
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/internal/discovery"
	"github.com/Resonate-Protocol/resonate-synth/internal/protocol"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultPort is the port sinks listen on when none is configured
const DefaultPort = 8927

const (
	sendBuffer    = 512
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

var errSinkClosed = errors.New("sink is not open")

// Config holds sink configuration
type Config struct {
	Port       int
	Name       string
	Codec      string
	EnableMDNS bool

	// Stats, if set, is reported by the status endpoint.
	Stats func() playback.Stats
}

// Sink streams buffers to connected listeners
type Sink struct {
	config    Config
	sinkID    string
	startTime time.Time

	upgrader websocket.Upgrader
	router   *chi.Mux

	httpServer  *http.Server
	mdnsManager *discovery.Manager

	mu        sync.Mutex
	listeners map[string]*Listener
	inflight  map[uuid.UUID]*inflight
	open      bool
	done      func(*playback.Header)

	format    audio.Format
	wire      audio.Format
	encoder   encode.Encoder
	resampler *resample.Resampler
}

// Listener is one connected websocket peer
type Listener struct {
	ID   string
	Name string

	conn     *websocket.Conn
	sendChan chan interface{}
	quit     chan struct{}
	once     sync.Once

	acked int
}

// ListenerInfo is a snapshot of a listener for status reporting
type ListenerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Acked int    `json:"acked"`
}

type inflight struct {
	header  *playback.Header
	waiting map[string]struct{}
	timer   *time.Timer
}

type preparedBuffer struct {
	packets [][]byte
	samples int
}

// New creates a sink. The codec is checked here so a bad name fails before
// any listener connects.
func New(config Config) (*Sink, error) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Name == "" {
		config.Name = "synth-sink"
	}
	if config.Codec == "" {
		config.Codec = protocol.CodecPCM
	}
	if config.Codec != protocol.CodecPCM && config.Codec != protocol.CodecOpus {
		return nil, fmt.Errorf("unsupported codec: %s (supported: pcm, opus)", config.Codec)
	}

	s := &Sink{
		config:    config,
		sinkID:    uuid.New().String(),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Sinks only serve trusted local networks
				if origin := r.Header.Get("Origin"); origin != "" {
					log.Printf("Warning: accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		listeners: make(map[string]*Listener),
		inflight:  make(map[uuid.UUID]*inflight),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving the sink routes
func (s *Sink) Handler() http.Handler {
	return s.router
}

// Codec returns the wire codec
func (s *Sink) Codec() string {
	return s.config.Codec
}

// Open implements playback.Device
func (s *Sink) Open(format audio.Format, done func(*playback.Header)) error {
	wire := format
	if s.config.Codec == protocol.CodecOpus && wire.SampleRate != encode.OpusSampleRate {
		wire.SampleRate = encode.OpusSampleRate
	}

	enc, err := encode.New(s.config.Codec, wire)
	if err != nil {
		return fmt.Errorf("failed to create %s encoder: %w", s.config.Codec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.format = format
	s.wire = wire
	s.encoder = enc
	s.resampler = resample.New(format.SampleRate, wire.SampleRate, format.Channels)
	s.done = done
	s.open = true

	if wire.SampleRate != format.SampleRate {
		log.Printf("Sink resampling %d Hz -> %d Hz for %s", format.SampleRate, wire.SampleRate, s.config.Codec)
	}
	return nil
}

// Prepare encodes the buffer into wire packets. The pool serializes calls.
func (s *Sink) Prepare(h *playback.Header) error {
	s.mu.Lock()
	enc, rs, open := s.encoder, s.resampler, s.open
	s.mu.Unlock()
	if !open {
		return errSinkClosed
	}

	samples := h.Samples
	if !rs.Passthrough() {
		samples = rs.Resample(samples)
	}

	packets, err := encode.Packetize(enc, samples)
	if err != nil {
		return fmt.Errorf("failed to encode buffer %s: %w", h.ID, err)
	}
	h.Opaque = &preparedBuffer{packets: packets, samples: len(samples)}
	return nil
}

// Unprepare implements playback.Device
func (s *Sink) Unprepare(h *playback.Header) error {
	h.Opaque = nil
	return nil
}

// Write sends the buffer to every listener connected right now. With no
// listeners the buffer completes after its own playback time.
func (s *Sink) Write(h *playback.Header) error {
	pb, ok := h.Opaque.(*preparedBuffer)
	if !ok {
		return fmt.Errorf("buffer %s not prepared", h.ID)
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return errSinkClosed
	}

	entry := &inflight{header: h, waiting: make(map[string]struct{}, len(s.listeners))}
	targets := make([]*Listener, 0, len(s.listeners))
	for id, l := range s.listeners {
		entry.waiting[id] = struct{}{}
		targets = append(targets, l)
	}
	if len(targets) == 0 {
		d := s.format.Duration(len(h.Samples)) * time.Duration(h.Loops)
		id := h.ID
		entry.timer = time.AfterFunc(d, func() { s.finish(id) })
	}
	s.inflight[h.ID] = entry
	kind := s.frameKind()
	s.mu.Unlock()

	for _, l := range targets {
		if err := s.sendBuffer(l, h, pb, kind); err != nil {
			log.Printf("Dropping listener %s: %v", l.Name, err)
			l.close()
		}
	}
	return nil
}

// Close implements playback.Device. Buffers still in flight are completed.
func (s *Sink) Close() error {
	s.mu.Lock()
	pending := make([]*playback.Header, 0, len(s.inflight))
	for id, entry := range s.inflight {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		pending = append(pending, entry.header)
		delete(s.inflight, id)
	}
	done := s.done
	enc := s.encoder
	s.open = false
	s.encoder = nil
	s.mu.Unlock()

	if done != nil {
		for _, h := range pending {
			done(h)
		}
	}
	if enc != nil {
		return enc.Close()
	}
	return nil
}

func (s *Sink) frameKind() byte {
	if s.config.Codec == protocol.CodecOpus {
		return protocol.FrameOpus
	}
	return protocol.FramePCM
}

func (s *Sink) sendBuffer(l *Listener, h *playback.Header, pb *preparedBuffer, kind byte) error {
	start := protocol.BufferStart{
		BufferID: h.ID.String(),
		Samples:  pb.samples,
		Loops:    h.Loops,
		Frames:   len(pb.packets),
	}
	if err := l.sendMessage(protocol.TypeBufferStart, start); err != nil {
		return err
	}

	for i, packet := range pb.packets {
		frame := protocol.EncodeFrame(protocol.Frame{
			Kind:     kind,
			BufferID: h.ID,
			Seq:      uint32(i),
			Final:    i == len(pb.packets)-1,
			Payload:  packet,
		})
		if err := l.send(frame); err != nil {
			return err
		}
	}
	return nil
}

// finish completes a buffer once. Safe to call repeatedly.
func (s *Sink) finish(id uuid.UUID) {
	s.mu.Lock()
	entry, ok := s.inflight[id]
	if ok {
		delete(s.inflight, id)
	}
	done := s.done
	s.mu.Unlock()

	if ok && done != nil {
		done(entry.header)
	}
}

// ack records that a listener finished playing a buffer
func (s *Sink) ack(l *Listener, id uuid.UUID) {
	s.mu.Lock()
	entry, ok := s.inflight[id]
	if !ok {
		s.mu.Unlock()
		log.Printf("Listener %s acked unknown buffer %s", l.Name, id)
		return
	}
	delete(entry.waiting, l.ID)
	l.acked++
	ready := len(entry.waiting) == 0 && entry.timer == nil
	s.mu.Unlock()

	if ready {
		s.finish(id)
	}
}

// register adds a listener unless its ID is taken
func (s *Sink) register(l *Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.listeners[l.ID]; ok {
		return fmt.Errorf("listener ID %s already connected (name: %s)", l.ID, existing.Name)
	}
	s.listeners[l.ID] = l
	return nil
}

// release removes a listener and stops waiting on it
func (s *Sink) release(l *Listener) {
	s.mu.Lock()
	if s.listeners[l.ID] == l {
		delete(s.listeners, l.ID)
	}
	var ready []uuid.UUID
	for id, entry := range s.inflight {
		if _, ok := entry.waiting[l.ID]; !ok {
			continue
		}
		delete(entry.waiting, l.ID)
		if len(entry.waiting) == 0 && entry.timer == nil {
			ready = append(ready, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ready {
		s.finish(id)
	}
}

// ListenerCount returns the number of connected listeners
func (s *Sink) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Listeners returns a snapshot of connected listeners
func (s *Sink) Listeners() []ListenerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ListenerInfo, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, ListenerInfo{ID: l.ID, Name: l.Name, Acked: l.acked})
	}
	return out
}

// InFlight returns the number of buffers waiting on listeners
func (s *Sink) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Sink) disconnectAll() {
	s.mu.Lock()
	all := make([]*Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		all = append(all, l)
	}
	s.mu.Unlock()

	for _, l := range all {
		l.close()
	}
}

// Run serves the sink until ctx is cancelled
func (s *Sink) Run(ctx context.Context) error {
	log.Printf("Sink starting: %s (ID: %s, codec: %s)", s.config.Name, s.sinkID, s.config.Codec)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        discovery.DefaultPath,
			Codec:       s.config.Codec,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	log.Printf("WebSocket sink listening on %s", addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		log.Printf("Sink shutting down...")
	case err := <-errChan:
		serverErr = err
	}

	s.disconnectAll()
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// handleStream upgrades a request and runs the listener session
func (s *Sink) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	log.Printf("New WebSocket connection from %s", r.RemoteAddr)

	s.serveListener(conn)
}

func (s *Sink) serveListener(conn *websocket.Conn) {
	defer conn.Close()

	hello, ok := s.readHello(conn)
	if !ok {
		return
	}

	l := &Listener{
		ID:       hello.ListenerID,
		Name:     hello.Name,
		conn:     conn,
		sendChan: make(chan interface{}, sendBuffer),
		quit:     make(chan struct{}),
	}
	if err := s.register(l); err != nil {
		log.Printf("Rejecting listener: %v", err)
		rejectListener(conn, "duplicate_listener_id", "Listener ID already connected")
		return
	}
	log.Printf("Listener connected: %s (ID: %s)", l.Name, l.ID)

	defer func() {
		l.close()
		s.release(l)
		log.Printf("Listener disconnected: %s", l.Name)
	}()

	go l.writer()

	s.mu.Lock()
	wire := s.wire
	s.mu.Unlock()

	if err := l.sendMessage(protocol.TypeSinkHello, protocol.SinkHello{
		SinkID:  s.sinkID,
		Name:    s.config.Name,
		Version: protocol.Version,
	}); err != nil {
		log.Printf("Error sending sink hello: %v", err)
		return
	}
	if err := l.sendMessage(protocol.TypeStreamStart, protocol.StreamStart{
		Codec:      s.config.Codec,
		SampleRate: wire.SampleRate,
		Channels:   wire.Channels,
		BitDepth:   wire.BitDepth,
	}); err != nil {
		log.Printf("Error sending stream start: %v", err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		if !s.handleListenerMessage(l, data) {
			return
		}
	}
}

// readHello reads and validates the handshake, rejecting bad peers
func (s *Sink) readHello(conn *websocket.Conn) (protocol.ListenerHello, bool) {
	var hello protocol.ListenerHello

	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Printf("Error reading hello: %v", err)
		return hello, false
	}
	env, err := protocol.Decode(data)
	if err != nil {
		log.Printf("Error decoding hello: %v", err)
		return hello, false
	}
	if env.Type != protocol.TypeListenerHello {
		log.Printf("Expected %s, got %s", protocol.TypeListenerHello, env.Type)
		rejectListener(conn, "bad_handshake", "Expected listener/hello")
		return hello, false
	}
	if err := env.Into(&hello); err != nil {
		log.Printf("Error parsing hello: %v", err)
		rejectListener(conn, "bad_handshake", err.Error())
		return hello, false
	}

	switch {
	case hello.ListenerID == "" || hello.Name == "":
		rejectListener(conn, "bad_handshake", "listener_id and name are required")
		return hello, false
	case hello.Version != 0 && hello.Version != protocol.Version:
		rejectListener(conn, "unsupported_version", fmt.Sprintf("sink speaks version %d", protocol.Version))
		return hello, false
	case !acceptsCodec(hello.Codecs, s.config.Codec):
		rejectListener(conn, "unsupported_codec", fmt.Sprintf("sink streams %s", s.config.Codec))
		return hello, false
	}

	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open {
		rejectListener(conn, "not_ready", "sink is not streaming")
		return hello, false
	}

	log.Printf("Listener hello: %s (ID: %s, codecs: %v)", hello.Name, hello.ListenerID, hello.Codecs)
	return hello, true
}

// handleListenerMessage processes one text message. It returns false when
// the session should end.
func (s *Sink) handleListenerMessage(l *Listener, data []byte) bool {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Printf("Error decoding message from %s: %v", l.Name, err)
		return true
	}

	switch env.Type {
	case protocol.TypeBufferDone:
		var msg protocol.BufferDone
		if err := env.Into(&msg); err != nil {
			log.Printf("Error parsing ack from %s: %v", l.Name, err)
			return true
		}
		id, err := uuid.Parse(msg.BufferID)
		if err != nil {
			log.Printf("Invalid buffer ID from %s: %q", l.Name, msg.BufferID)
			return true
		}
		s.ack(l, id)
	case protocol.TypeListenerGoodbye:
		var msg protocol.ListenerGoodbye
		if err := env.Into(&msg); err != nil {
			log.Printf("Error parsing goodbye from %s: %v", l.Name, err)
		}
		log.Printf("Listener %s said goodbye: %s", l.Name, msg.Reason)
		return false
	default:
		log.Printf("Unknown message type: %s", env.Type)
	}
	return true
}

func acceptsCodec(codecs []string, codec string) bool {
	if len(codecs) == 0 {
		return codec == protocol.CodecPCM
	}
	for _, c := range codecs {
		if c == codec {
			return true
		}
	}
	return false
}

func rejectListener(conn *websocket.Conn, code, message string) {
	data, err := protocol.Encode(protocol.TypeSinkError, protocol.SinkError{Code: code, Message: message})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	conn.WriteMessage(websocket.TextMessage, data)
}

// send queues a binary frame or a protocol.Message
func (l *Listener) send(v interface{}) error {
	select {
	case <-l.quit:
		return fmt.Errorf("listener %s closed", l.ID)
	default:
	}

	select {
	case l.sendChan <- v:
		return nil
	case <-l.quit:
		return fmt.Errorf("listener %s closed", l.ID)
	default:
		return fmt.Errorf("listener %s send buffer full", l.ID)
	}
}

func (l *Listener) sendMessage(msgType string, payload interface{}) error {
	return l.send(protocol.Message{Type: msgType, Payload: payload})
}

func (l *Listener) close() {
	l.once.Do(func() {
		close(l.quit)
		l.conn.Close()
	})
}

// writer owns all data writes on the connection
func (l *Listener) writer() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.quit:
			return

		case msg := <-l.sendChan:
			var (
				kind int
				data []byte
			)
			switch v := msg.(type) {
			case []byte:
				kind, data = websocket.BinaryMessage, v
			case protocol.Message:
				encoded, err := protocol.Encode(v.Type, v.Payload)
				if err != nil {
					log.Printf("Error marshaling message: %v", err)
					continue
				}
				kind, data = websocket.TextMessage, encoded
			default:
				continue
			}

			l.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := l.conn.WriteMessage(kind, data); err != nil {
				log.Printf("Error writing to %s: %v", l.Name, err)
				l.close()
				return
			}

		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				l.close()
				return
			}
		}
	}
}
