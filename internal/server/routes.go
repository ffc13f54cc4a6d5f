// ABOUTME: HTTP routes for the sink: health, status and the stream websocket
// ABOUTME: Built on a chi router with request logging and panic recovery
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/internal/discovery"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Status is the body served by GET /status
type Status struct {
	SinkID     string          `json:"sink_id"`
	Name       string          `json:"name"`
	Codec      string          `json:"codec"`
	SampleRate int             `json:"sample_rate"`
	Channels   int             `json:"channels"`
	Uptime     string          `json:"uptime"`
	Listeners  []ListenerInfo  `json:"listeners"`
	InFlight   int             `json:"in_flight"`
	Pool       *playback.Stats `json:"pool,omitempty"`
}

func (s *Sink) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.Default(), NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get(discovery.DefaultPath, s.handleStream)

	return r
}

func (s *Sink) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusSnapshot collects the sink state served by GET /status
func (s *Sink) StatusSnapshot() Status {
	s.mu.Lock()
	wire := s.wire
	inFlight := len(s.inflight)
	s.mu.Unlock()

	status := Status{
		SinkID:     s.sinkID,
		Name:       s.config.Name,
		Codec:      s.config.Codec,
		SampleRate: wire.SampleRate,
		Channels:   wire.Channels,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Listeners:  s.Listeners(),
		InFlight:   inFlight,
	}
	if s.config.Stats != nil {
		stats := s.config.Stats()
		status.Pool = &stats
	}
	return status
}

func (s *Sink) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.StatusSnapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}
