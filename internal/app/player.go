// ABOUTME: Synth player application orchestration
// ABOUTME: Renders content, submits it to the pool, and runs sink and TUI alongside
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/internal/server"
	"github.com/Resonate-Protocol/resonate-synth/internal/ui"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
	"github.com/Resonate-Protocol/resonate-synth/pkg/synth"
	"golang.org/x/sync/errgroup"
)

// OutputSink streams to network listeners instead of a local device
const OutputSink output.Kind = "sink"

const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRetryInterval   = 10 * time.Millisecond
	DefaultMaxRetries      = 1000
)

// ErrBufferDropped is returned when a buffer found no free slot in time
var ErrBufferDropped = errors.New("buffer dropped")

// Config holds player configuration
type Config struct {
	SampleRate int
	Channels   int
	BPM        int
	Seed       int64

	Output   output.Kind
	WAVPath  string
	Realtime bool
	Loops    int

	// Sink output
	Port       int
	Name       string
	Codec      string
	EnableMDNS bool

	UseTUI bool

	ShutdownTimeout time.Duration
	RetryInterval   time.Duration

	// MaxRetries bounds submit retries while the pool is full. Negative
	// retries until the context ends.
	MaxRetries int
}

// Stats extends the pool counters with buffers dropped by the retry policy
type Stats struct {
	playback.Stats
	Dropped uint64
}

// Player represents the main player application
type Player struct {
	config Config
	engine *synth.Engine
	device playback.Device
	sink   *server.Sink
	pool   *playback.Pool

	dropped atomic.Uint64
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = audio.DefaultChannels
	}
	if c.BPM == 0 {
		c.BPM = synth.DefaultBPM
	}
	if c.Seed == 0 {
		c.Seed = synth.DefaultSeed
	}
	if c.Output == "" {
		c.Output = output.KindOto
	}
	if c.Loops <= 0 {
		c.Loops = 1
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// New creates a player for the configured output and opens it
func New(config Config) (*Player, error) {
	config = config.withDefaults()

	if config.Output == OutputSink {
		var p *Player
		sink, err := server.New(server.Config{
			Port:       config.Port,
			Name:       config.Name,
			Codec:      config.Codec,
			EnableMDNS: config.EnableMDNS,
			Stats:      func() playback.Stats { return p.pool.Stats() },
		})
		if err != nil {
			return nil, err
		}
		p, err = newPlayer(config, sink)
		return p, err
	}

	device, err := output.New(output.Options{
		Kind:     config.Output,
		WAVPath:  config.WAVPath,
		Realtime: config.Realtime,
	})
	if err != nil {
		return nil, err
	}
	return newPlayer(config, device)
}

// NewWithDevice creates a player on a caller-supplied device
func NewWithDevice(config Config, device playback.Device) (*Player, error) {
	return newPlayer(config.withDefaults(), device)
}

func newPlayer(config Config, device playback.Device) (*Player, error) {
	engine, err := synth.NewEngine(synth.Config{
		Format: audio.Format{SampleRate: config.SampleRate, Channels: config.Channels, BitDepth: 16},
		BPM:    config.BPM,
		Seed:   config.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	p := &Player{
		config: config,
		engine: engine,
		device: device,
	}
	p.pool = playback.NewPool(device, playback.Config{Format: engine.Format()})

	if sink, ok := device.(*server.Sink); ok {
		p.sink = sink
	}

	if err := p.pool.Open(); err != nil {
		return nil, fmt.Errorf("failed to open %s output: %w", config.Output, err)
	}
	log.Printf("Player ready: %s output, %d Hz, %d ch, %d BPM, seed %d",
		config.Output, config.SampleRate, config.Channels, config.BPM, config.Seed)
	return p, nil
}

// Engine returns the synth engine
func (p *Player) Engine() *synth.Engine {
	return p.engine
}

// Sink returns the network sink, or nil for local outputs
func (p *Player) Sink() *server.Sink {
	return p.sink
}

// PlayTrack renders a track and submits it
func (p *Player) PlayTrack(ctx context.Context, track synth.Track, loops int) error {
	if err := track.Validate(); err != nil {
		return err
	}
	return p.submit(ctx, p.engine.RenderTrack(track), loops)
}

// PlayMix renders one beat of modulated voices and submits it
func (p *Player) PlayMix(ctx context.Context, descriptors []synth.SoundDescriptor, loops int) error {
	samples, err := p.engine.RenderMix(descriptors)
	if err != nil {
		return err
	}
	return p.submit(ctx, samples, loops)
}

// PlayHarmonics renders the organ progression and submits it
func (p *Player) PlayHarmonics(ctx context.Context, h *synth.Harmonics, loops int) error {
	if h.Len() == 0 {
		return fmt.Errorf("no harmonics to play")
	}
	return p.submit(ctx, p.engine.RenderHarmonics(h), loops)
}

// PlayHit renders one shaped beat of a single instrument and submits it
func (p *Player) PlayHit(ctx context.Context, step synth.Step, opts synth.HitOptions, loops int) error {
	samples, err := p.engine.RenderHit(step, opts)
	if err != nil {
		return err
	}
	return p.submit(ctx, samples, loops)
}

// submit hands a buffer to the pool, retrying on backpressure. After
// MaxRetries the buffer is dropped and counted.
func (p *Player) submit(ctx context.Context, samples []int16, loops int) error {
	if loops <= 0 {
		loops = p.config.Loops
	}

	for attempt := 0; ; attempt++ {
		_, err := p.pool.Submit(samples, loops)
		if err == nil {
			return nil
		}
		if !errors.Is(err, playback.ErrNoFreeSlot) {
			return err
		}
		if p.config.MaxRetries >= 0 && attempt >= p.config.MaxRetries {
			p.dropped.Add(1)
			log.Printf("Dropping buffer of %d samples after %d retries", len(samples), attempt)
			return fmt.Errorf("%w after %d retries", ErrBufferDropped, attempt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.config.RetryInterval):
		}
	}
}

// Stats returns pool counters plus dropped buffers
func (p *Player) Stats() Stats {
	return Stats{Stats: p.pool.Stats(), Dropped: p.dropped.Load()}
}

// Status builds a TUI update from the current state
func (p *Player) Status() ui.StatusMsg {
	stats := p.pool.Stats()
	format := p.engine.Format()

	msg := ui.StatusMsg{
		Mode:       string(p.config.Output),
		Codec:      "pcm",
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   format.BitDepth,
		Stats:      &stats,
		Dropped:    p.dropped.Load(),
	}

	if p.sink != nil {
		msg.Codec = p.sink.Codec()
		listeners := p.sink.Listeners()
		msg.Listeners = make([]string, 0, len(listeners))
		for _, l := range listeners {
			msg.Listeners = append(msg.Listeners, l.Name)
		}
	}
	return msg
}

// Run executes produce alongside the sink server and TUI. When produce
// returns the pool is drained and everything else stops.
func (p *Player) Run(ctx context.Context, title string, produce func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if p.sink != nil {
		g.Go(func() error {
			return p.sink.Run(gctx)
		})
	}

	if p.config.UseTUI {
		ctrl := ui.NewControl()
		monitor := ui.NewMonitor(title, ctrl, p.Status)

		g.Go(func() error {
			err := monitor.Run(gctx)
			cancel()
			return err
		})
		g.Go(func() error {
			p.handleControls(gctx, ctrl)
			return nil
		})
	}

	g.Go(func() error {
		err := produce(gctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), p.config.ShutdownTimeout)
		defer shutdownCancel()
		if closeErr := p.Close(shutdownCtx); closeErr != nil && err == nil {
			err = closeErr
		}

		cancel()
		return err
	})

	return g.Wait()
}

// handleControls applies TUI volume changes to the local speaker
func (p *Player) handleControls(ctx context.Context, ctrl *ui.Control) {
	speaker, _ := p.device.(*output.Oto)

	for {
		select {
		case change := <-ctrl.Volume:
			if speaker == nil {
				continue
			}
			speaker.SetVolume(change.Volume)
			speaker.SetMuted(change.Muted)
		case <-ctrl.Quit:
			log.Printf("TUI quit requested, draining...")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close drains in-flight buffers and closes the output
func (p *Player) Close(ctx context.Context) error {
	stats := p.Stats()
	log.Printf("Draining %d buffers (submitted %d, completed %d, dropped %d)",
		stats.InFlight, stats.Submitted, stats.Completed, stats.Dropped)

	if err := p.pool.Shutdown(ctx); err != nil {
		if errors.Is(err, playback.ErrPoolClosed) {
			return nil
		}
		return fmt.Errorf("failed to drain output: %w", err)
	}
	return nil
}
