// ABOUTME: Tests for the websocket sink device
// ABOUTME: Drives a pool through httptest listeners and checks acks and releases
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/internal/protocol"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
	"github.com/gorilla/websocket"
)

type harness struct {
	sink *Sink
	pool *playback.Pool
	ts   *httptest.Server
	url  string
}

func startSink(t *testing.T, config Config, format audio.Format) *harness {
	t.Helper()

	sink, err := New(config)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	pool := playback.NewPool(sink, playback.Config{Format: format})
	if err := pool.Open(); err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}

	ts := httptest.NewServer(sink.Handler())
	h := &harness{
		sink: sink,
		pool: pool,
		ts:   ts,
		url:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream",
	}

	t.Cleanup(func() {
		sink.disconnectAll()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pool.Shutdown(ctx)
		ts.Close()
	})
	return h
}

func dial(t *testing.T, url string, hello protocol.ListenerHello) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial sink: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	data, err := protocol.Encode(protocol.TypeListenerHello, hello)
	if err != nil {
		t.Fatalf("failed to encode hello: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to send hello: %v", err)
	}
	return conn
}

// connect completes a handshake and returns the announced stream format
func connect(t *testing.T, url, id string, codecs ...string) (*websocket.Conn, protocol.StreamStart) {
	t.Helper()

	conn := dial(t, url, protocol.ListenerHello{ListenerID: id, Name: "test-" + id, Version: protocol.Version, Codecs: codecs})

	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeSinkHello {
		t.Fatalf("expected %s, got %s", protocol.TypeSinkHello, env.Type)
	}
	var hello protocol.SinkHello
	if err := env.Into(&hello); err != nil {
		t.Fatalf("failed to parse sink hello: %v", err)
	}
	if hello.Version != protocol.Version {
		t.Errorf("expected version %d, got %d", protocol.Version, hello.Version)
	}

	env = readEnvelope(t, conn)
	if env.Type != protocol.TypeStreamStart {
		t.Fatalf("expected %s, got %s", protocol.TypeStreamStart, env.Type)
	}
	var start protocol.StreamStart
	if err := env.Into(&start); err != nil {
		t.Fatalf("failed to parse stream start: %v", err)
	}
	return conn, start
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("expected text message, got kind %d", kind)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	return env
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("expected binary message, got kind %d", kind)
	}
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	return frame
}

func readBufferStart(t *testing.T, conn *websocket.Conn) protocol.BufferStart {
	t.Helper()

	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeBufferStart {
		t.Fatalf("expected %s, got %s", protocol.TypeBufferStart, env.Type)
	}
	var start protocol.BufferStart
	if err := env.Into(&start); err != nil {
		t.Fatalf("failed to parse buffer start: %v", err)
	}
	return start
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testFormat() audio.Format {
	return audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
}

func TestNewRejectsUnknownCodec(t *testing.T) {
	if _, err := New(Config{Codec: "flac"}); err == nil {
		t.Fatal("expected error for unsupported codec")
	}
}

func TestNewDefaults(t *testing.T) {
	sink, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.config.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, sink.config.Port)
	}
	if sink.Codec() != protocol.CodecPCM {
		t.Errorf("expected pcm codec, got %s", sink.Codec())
	}
}

func TestHealth(t *testing.T) {
	h := startSink(t, Config{}, testFormat())

	resp, err := http.Get(h.ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusReportsListenersAndPool(t *testing.T) {
	var pool *playback.Pool
	h := startSink(t, Config{Name: "status-sink", Stats: func() playback.Stats { return pool.Stats() }}, testFormat())
	pool = h.pool

	connect(t, h.url, "l1")

	resp, err := http.Get(h.ts.URL + "/status")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}

	if status.Name != "status-sink" {
		t.Errorf("expected name status-sink, got %s", status.Name)
	}
	if status.SampleRate != 44100 || status.Channels != 2 {
		t.Errorf("expected 44100/2, got %d/%d", status.SampleRate, status.Channels)
	}
	if len(status.Listeners) != 1 || status.Listeners[0].ID != "l1" {
		t.Errorf("expected listener l1, got %+v", status.Listeners)
	}
	if status.Pool == nil || status.Pool.Free != playback.Capacity {
		t.Errorf("expected pool stats with %d free, got %+v", playback.Capacity, status.Pool)
	}
}

func TestHandshake(t *testing.T) {
	h := startSink(t, Config{}, testFormat())

	_, start := connect(t, h.url, "l1")

	if start.Codec != protocol.CodecPCM {
		t.Errorf("expected pcm, got %s", start.Codec)
	}
	if start.SampleRate != 44100 || start.Channels != 2 || start.BitDepth != 16 {
		t.Errorf("unexpected stream format: %+v", start)
	}
	if h.sink.ListenerCount() != 1 {
		t.Errorf("expected 1 listener, got %d", h.sink.ListenerCount())
	}
}

func TestHandshakeRejections(t *testing.T) {
	h := startSink(t, Config{}, testFormat())
	connect(t, h.url, "taken")

	tests := []struct {
		name  string
		hello protocol.ListenerHello
		code  string
	}{
		{"duplicate", protocol.ListenerHello{ListenerID: "taken", Name: "dup"}, "duplicate_listener_id"},
		{"codec", protocol.ListenerHello{ListenerID: "opus-only", Name: "o", Codecs: []string{"opus"}}, "unsupported_codec"},
		{"version", protocol.ListenerHello{ListenerID: "v9", Name: "v", Version: 9}, "unsupported_version"},
		{"missing id", protocol.ListenerHello{Name: "anon"}, "bad_handshake"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, h.url, tt.hello)
			env := readEnvelope(t, conn)
			if env.Type != protocol.TypeSinkError {
				t.Fatalf("expected %s, got %s", protocol.TypeSinkError, env.Type)
			}
			var msg protocol.SinkError
			if err := env.Into(&msg); err != nil {
				t.Fatalf("failed to parse error: %v", err)
			}
			if msg.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, msg.Code)
			}
		})
	}

	if h.sink.ListenerCount() != 1 {
		t.Errorf("expected only the first listener, got %d", h.sink.ListenerCount())
	}
}

func TestHandshakeBeforeOpen(t *testing.T) {
	sink, err := New(Config{})
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	ts := httptest.NewServer(sink.Handler())
	defer ts.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/stream", protocol.ListenerHello{ListenerID: "l1", Name: "early"})
	env := readEnvelope(t, conn)

	var msg protocol.SinkError
	if err := env.Into(&msg); err != nil {
		t.Fatalf("failed to parse error: %v", err)
	}
	if msg.Code != "not_ready" {
		t.Errorf("expected not_ready, got %s", msg.Code)
	}
}

func TestAckCompletesBuffer(t *testing.T) {
	h := startSink(t, Config{}, testFormat())
	conn, _ := connect(t, h.url, "l1")

	sub, err := h.pool.Submit(make([]int16, 100), 2)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	start := readBufferStart(t, conn)
	if start.BufferID != sub.ID.String() {
		t.Errorf("expected buffer %s, got %s", sub.ID, start.BufferID)
	}
	if start.Samples != 100 || start.Loops != 2 || start.Frames != 1 {
		t.Errorf("expected 100 samples, 2 loops, 1 frame, got %+v", start)
	}

	frame := readFrame(t, conn)
	if frame.Kind != protocol.FramePCM {
		t.Errorf("expected pcm frame, got %d", frame.Kind)
	}
	if frame.BufferID != sub.ID || !frame.Final || frame.Seq != 0 {
		t.Errorf("unexpected frame header: %+v", frame)
	}
	if len(frame.Payload) != 200 {
		t.Errorf("expected 200 payload bytes, got %d", len(frame.Payload))
	}

	// Held until the listener acks
	time.Sleep(20 * time.Millisecond)
	if h.pool.Free() != playback.Capacity-1 {
		t.Fatalf("expected %d free before ack, got %d", playback.Capacity-1, h.pool.Free())
	}

	data, _ := protocol.Encode(protocol.TypeBufferDone, protocol.BufferDone{BufferID: start.BufferID})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to ack: %v", err)
	}

	waitFor(t, "slot release", func() bool { return h.pool.Free() == playback.Capacity })
	if got := h.pool.Stats().Completed; got != 1 {
		t.Errorf("expected 1 completed, got %d", got)
	}
	if got := h.sink.Listeners()[0].Acked; got != 1 {
		t.Errorf("expected 1 ack recorded, got %d", got)
	}
}

func TestWaitsForEveryListener(t *testing.T) {
	h := startSink(t, Config{}, testFormat())
	a, _ := connect(t, h.url, "a")
	b, _ := connect(t, h.url, "b")

	if _, err := h.pool.Submit(make([]int16, 64), 1); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	startA := readBufferStart(t, a)
	readFrame(t, a)
	readBufferStart(t, b)
	readFrame(t, b)

	data, _ := protocol.Encode(protocol.TypeBufferDone, protocol.BufferDone{BufferID: startA.BufferID})
	a.WriteMessage(websocket.TextMessage, data)

	time.Sleep(20 * time.Millisecond)
	if h.pool.Free() != playback.Capacity-1 {
		t.Fatalf("expected buffer held for second listener, got %d free", h.pool.Free())
	}

	b.WriteMessage(websocket.TextMessage, data)
	waitFor(t, "slot release", func() bool { return h.pool.Free() == playback.Capacity })
}

func TestCompletesWithoutListeners(t *testing.T) {
	h := startSink(t, Config{}, testFormat())

	for i := 0; i < playback.Capacity; i++ {
		if _, err := h.pool.Submit(make([]int16, 100), 1); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}

	waitFor(t, "timed completion", func() bool { return h.pool.Free() == playback.Capacity })
	if h.sink.InFlight() != 0 {
		t.Errorf("expected nothing in flight, got %d", h.sink.InFlight())
	}
}

func TestDisconnectReleasesBuffers(t *testing.T) {
	h := startSink(t, Config{}, testFormat())
	conn, _ := connect(t, h.url, "l1")

	for i := 0; i < 3; i++ {
		if _, err := h.pool.Submit(make([]int16, 100), 1); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	readBufferStart(t, conn)

	if h.pool.Free() != playback.Capacity-3 {
		t.Fatalf("expected %d free, got %d", playback.Capacity-3, h.pool.Free())
	}

	conn.Close()

	waitFor(t, "release on disconnect", func() bool { return h.pool.Free() == playback.Capacity })
	waitFor(t, "listener removal", func() bool { return h.sink.ListenerCount() == 0 })
}

func TestGoodbyeEndsSession(t *testing.T) {
	h := startSink(t, Config{}, testFormat())
	conn, _ := connect(t, h.url, "l1")

	data, _ := protocol.Encode(protocol.TypeListenerGoodbye, protocol.ListenerGoodbye{Reason: "done"})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to send goodbye: %v", err)
	}

	waitFor(t, "listener removal", func() bool { return h.sink.ListenerCount() == 0 })
}

func TestMalformedGoodbyeEndsSession(t *testing.T) {
	h := startSink(t, Config{}, testFormat())
	conn, _ := connect(t, h.url, "l1")

	data := []byte(`{"type":"` + protocol.TypeListenerGoodbye + `","payload":{"reason":5}}`)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to send goodbye: %v", err)
	}

	waitFor(t, "listener removal", func() bool { return h.sink.ListenerCount() == 0 })
}

func TestOpusSinkResamples(t *testing.T) {
	h := startSink(t, Config{Codec: protocol.CodecOpus}, testFormat())
	conn, stream := connect(t, h.url, "l1", protocol.CodecOpus)

	if stream.Codec != protocol.CodecOpus || stream.SampleRate != 48000 {
		t.Fatalf("expected opus at 48000, got %+v", stream)
	}

	// 100ms at 44.1kHz becomes 100ms at 48kHz: five 20ms packets
	if _, err := h.pool.Submit(make([]int16, 4410*2), 1); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	start := readBufferStart(t, conn)
	if start.Samples != 4800*2 {
		t.Errorf("expected %d samples, got %d", 4800*2, start.Samples)
	}
	if start.Frames != 5 {
		t.Errorf("expected 5 frames, got %d", start.Frames)
	}

	for i := 0; i < start.Frames; i++ {
		frame := readFrame(t, conn)
		if frame.Kind != protocol.FrameOpus {
			t.Errorf("frame %d: expected opus kind, got %d", i, frame.Kind)
		}
		if frame.Seq != uint32(i) {
			t.Errorf("frame %d: expected seq %d, got %d", i, i, frame.Seq)
		}
		if frame.Final != (i == start.Frames-1) {
			t.Errorf("frame %d: unexpected final flag %v", i, frame.Final)
		}
	}
}

func TestCloseFlushesInFlight(t *testing.T) {
	h := startSink(t, Config{}, testFormat())
	connect(t, h.url, "l1")

	if _, err := h.pool.Submit(make([]int16, 100), 1); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if h.sink.InFlight() != 1 {
		t.Fatalf("expected 1 in flight, got %d", h.sink.InFlight())
	}

	if err := h.sink.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if h.pool.Free() != playback.Capacity {
		t.Errorf("expected all slots free after close, got %d", h.pool.Free())
	}
	if _, err := h.pool.Submit(make([]int16, 100), 1); err == nil {
		t.Error("expected submit to a closed sink to fail")
	}
}
