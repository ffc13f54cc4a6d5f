// ABOUTME: Plays buffers received from a sink through a local playback pool
// ABOUTME: Acks each sink buffer once the local device finishes it
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
	"github.com/google/uuid"
)

// PlayerConfig holds player configuration
type PlayerConfig struct {
	// RetryInterval is the wait between submits while the pool is full.
	RetryInterval time.Duration

	// ShutdownTimeout bounds the final drain of the local pool.
	ShutdownTimeout time.Duration
}

// Player feeds a connected client's buffers to a local device
type Player struct {
	client *Client
	pool   *playback.Pool
	config PlayerConfig

	mu      sync.Mutex
	pending map[uuid.UUID]uuid.UUID // pool submission -> sink buffer
	early   map[uuid.UUID]struct{}
}

// NewPlayer creates a player for an already connected client
func NewPlayer(c *Client, device playback.Device, config PlayerConfig) *Player {
	if config.RetryInterval <= 0 {
		config.RetryInterval = 10 * time.Millisecond
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}

	p := &Player{
		client:  c,
		config:  config,
		pending: make(map[uuid.UUID]uuid.UUID),
		early:   make(map[uuid.UUID]struct{}),
	}
	p.pool = playback.NewPool(device, playback.Config{
		Format:     c.Format(),
		OnComplete: p.onComplete,
	})
	return p
}

// Stats returns the local pool counters
func (p *Player) Stats() playback.Stats {
	return p.pool.Stats()
}

// Run plays buffers until ctx ends or the sink disconnects
func (p *Player) Run(ctx context.Context) error {
	if err := p.pool.Open(); err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	log.Printf("Playing stream from %s", p.client.SinkName())

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case buf, ok := <-p.client.Buffers:
			if !ok {
				break loop
			}
			if err := p.play(ctx, buf); err != nil {
				runErr = err
				break loop
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), p.config.ShutdownTimeout)
	defer cancel()
	if err := p.pool.Shutdown(shutdownCtx); err != nil {
		log.Printf("Output did not drain: %v", err)
	}

	if p.client.IsConnected() {
		p.client.Goodbye("stopped")
		p.client.Close()
	}
	return runErr
}

// play submits one buffer, retrying while every slot is busy
func (p *Player) play(ctx context.Context, buf Buffer) error {
	for {
		sub, err := p.pool.Submit(buf.Samples, buf.Loops)
		if err == nil {
			p.track(sub.ID, buf.ID)
			return nil
		}
		if !errors.Is(err, playback.ErrNoFreeSlot) {
			// Release the sink's slot even though nothing played
			p.ack(buf.ID)
			return fmt.Errorf("failed to play buffer %s: %w", buf.ID, err)
		}

		select {
		case <-ctx.Done():
			p.ack(buf.ID)
			return nil
		case <-time.After(p.config.RetryInterval):
		}
	}
}

// track maps a submission to its sink buffer. The local device may finish
// before this runs.
func (p *Player) track(local, remote uuid.UUID) {
	p.mu.Lock()
	if _, done := p.early[local]; done {
		delete(p.early, local)
		p.mu.Unlock()
		p.ack(remote)
		return
	}
	p.pending[local] = remote
	p.mu.Unlock()
}

func (p *Player) onComplete(sub playback.Submission) {
	p.mu.Lock()
	remote, ok := p.pending[sub.ID]
	if ok {
		delete(p.pending, sub.ID)
	} else {
		p.early[sub.ID] = struct{}{}
	}
	p.mu.Unlock()

	if ok {
		p.ack(remote)
	}
}

func (p *Player) ack(id uuid.UUID) {
	if err := p.client.Ack(id); err != nil {
		log.Printf("Failed to ack buffer %s: %v", id, err)
	}
}
