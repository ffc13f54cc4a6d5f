// ABOUTME: Oto-based audio output device
// ABOUTME: A persistent oto player pulls queued buffers with software volume
package output

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
	"github.com/ebitengine/oto/v3"
)

// Oto output device using the oto library
type Oto struct {
	mu     sync.Mutex
	otoCtx *oto.Context
	player *oto.Player
	queue  *queue
	format audio.Format
	volume int
	muted  bool
	ready  bool
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{
		volume: 100,
		muted:  false,
	}
}

// Open initializes the output device
func (o *Oto) Open(format audio.Format, done func(*playback.Header)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	// oto only supports 16-bit output
	if format.BitDepth != 16 {
		return fmt.Errorf("oto only supports 16-bit output, got %d", format.BitDepth)
	}

	// oto allows one context per process, so an existing one is reused
	if o.otoCtx != nil {
		if o.format != format {
			log.Printf("Warning: format change detected (%dHz %dch -> %dHz %dch) but oto doesn't support reinitialization. Continuing with existing context.",
				o.format.SampleRate, o.format.Channels, format.SampleRate, format.Channels)
		}
		o.queue = newQueue(done)

		// Close suspends the context and drops the player
		if o.player == nil {
			if err := o.otoCtx.Resume(); err != nil {
				return fmt.Errorf("failed to resume oto context: %w", err)
			}
			o.player = o.otoCtx.NewPlayer(o)
			o.player.Play()
		}

		o.ready = true
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.format = format
	o.queue = newQueue(done)

	// Persistent player that pulls from the queue
	o.player = o.otoCtx.NewPlayer(o)
	o.player.Play()

	o.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels", format.SampleRate, format.Channels)

	return nil
}

// Read is called by oto's playback goroutine
func (o *Oto) Read(p []byte) (int, error) {
	o.mu.Lock()
	q := o.queue
	multiplier := getVolumeMultiplier(o.volume, o.muted)
	o.mu.Unlock()

	if q == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := q.read(p)
	applyVolume(p[:n], multiplier)
	return len(p), nil
}

// Prepare converts the header's samples to PCM bytes
func (o *Oto) Prepare(h *playback.Header) error {
	h.Opaque = audio.SamplesToBytes(h.Samples)
	return nil
}

// Unprepare releases the header's PCM bytes
func (o *Oto) Unprepare(h *playback.Header) error {
	h.Opaque = nil
	return nil
}

// Write queues a header for playback
func (o *Oto) Write(h *playback.Header) error {
	o.mu.Lock()
	ready := o.ready
	q := o.queue
	o.mu.Unlock()

	if !ready {
		return fmt.Errorf("output not initialized")
	}
	q.push(h)
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Printf("Failed to close oto player: %v", err)
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			log.Printf("Failed to suspend oto context: %v", err)
		}
	}
	o.ready = false
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()
	log.Printf("Volume set to %d", volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	log.Printf("Muted: %v", muted)
}

// GetVolume returns current volume
func (o *Oto) GetVolume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// IsMuted returns mute state
func (o *Oto) IsMuted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// applyVolume scales 16-bit little-endian PCM in place with clipping protection
func applyVolume(pcm []byte, multiplier float64) {
	if multiplier == 1.0 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		scaled := int32(float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) * multiplier)
		if scaled > audio.MaxSample {
			scaled = audio.MaxSample
		} else if scaled < audio.MinSample {
			scaled = audio.MinSample
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(scaled)))
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
