// ABOUTME: Entry point for the procedural synth
// ABOUTME: Cobra subcommands render tracks, mixes, hits and organs to an output
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Resonate-Protocol/resonate-synth/internal/app"
	"github.com/Resonate-Protocol/resonate-synth/internal/pattern"
	"github.com/Resonate-Protocol/resonate-synth/internal/version"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-synth/pkg/synth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	outputKind string
	wavPath    string
	bpm        int
	seed       int64
	loops      int
	repeat     int
	realtime   bool

	port       int
	name       string
	codec      string
	enableMDNS bool

	noTUI   bool
	logFile string

	hitNote     float64
	hitCompress bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "resonate-synth",
	Short: "Procedural drum machine and modulated synth",
	Long: `resonate-synth renders 16-step drum tracks, modulated oscillator
mixes and harmonic organs, then streams them through an eight slot
buffer pool to the speaker, a WAV file, or network listeners.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

var trackCmd = &cobra.Command{
	Use:   "track [pattern.json]",
	Short: "Play a 16-step track (the built-in demo when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTrack,
}

var mixCmd = &cobra.Command{
	Use:   "mix [pattern.json]",
	Short: "Play one beat of modulated voices",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMix,
}

var harmonicsCmd = &cobra.Command{
	Use:   "harmonics [pattern.json | -]",
	Short: "Play the organ progression",
	Long: `Play the four beat organ progression. With "-", or when stdin is
piped, (harmonic, level) pairs are read from stdin until a harmonic of 0.

Example:
  printf '1 1\n2 0.5\n3 0.25\n0\n' | resonate-synth harmonics`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHarmonics,
}

var hitCmd = &cobra.Command{
	Use:   "hit <instrument>",
	Short: "Play one shaped beat of a single instrument",
	Long: `Play one beat of kick, snare, hihat, tone-stack or noise under a short
attack envelope at one third level.

Example:
  resonate-synth hit kick --note 60 --loops 4`,
	Args: cobra.ExactArgs(1),
	RunE: runHit,
}

var renderCmd = &cobra.Command{
	Use:   "render <pattern.json | demo> <out.wav>",
	Short: "Render a pattern to a WAV file",
	Args:  cobra.ExactArgs(2),
	RunE:  runRender,
}

var serveCmd = &cobra.Command{
	Use:   "serve [pattern.json]",
	Short: "Stream a pattern to network listeners until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(mixCmd)
	rootCmd.AddCommand(harmonicsCmd)
	rootCmd.AddCommand(hitCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(serveCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&outputKind, "output", "o", string(output.KindOto), "Output device (oto, wav, headless)")
	flags.StringVar(&wavPath, "wav", "synth.wav", "WAV file path for --output wav")
	flags.IntVar(&bpm, "bpm", 0, "Tempo in beats per minute (default: pattern or 120)")
	flags.Int64Var(&seed, "seed", synth.DefaultSeed, "Noise table seed")
	flags.IntVar(&loops, "loops", 0, "Times each buffer repeats (default: pattern or 1)")
	flags.IntVar(&repeat, "repeat", 1, "Times the content is submitted")
	flags.BoolVar(&realtime, "realtime", false, "Pace headless output like a real device")
	flags.BoolVar(&noTUI, "no-tui", false, "Disable TUI, use streaming logs instead")
	flags.StringVar(&logFile, "log-file", "resonate-synth.log", "Log file path")

	serveCmd.Flags().IntVar(&port, "port", 8927, "Port for listener connections")
	serveCmd.Flags().StringVar(&name, "name", "", "Sink friendly name (default: hostname-synth)")
	serveCmd.Flags().StringVar(&codec, "codec", "pcm", "Stream codec (pcm, opus)")
	serveCmd.Flags().BoolVar(&enableMDNS, "mdns", true, "Advertise the sink over mDNS")

	hitCmd.Flags().Float64Var(&hitNote, "note", 0, "Start frequency in Hz (default: instrument preset)")
	hitCmd.Flags().BoolVar(&hitCompress, "compress", false, "Run the hit through the compressor")
}

// setupLogging sends logs to the file, plus stdout when the TUI is off
func setupLogging(useTUI bool) (func(), error) {
	f, err := os.OpenFile(logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	return func() { _ = f.Close() }, nil
}

func wantTUI() bool {
	return !noTUI && term.IsTerminal(int(os.Stdout.Fd()))
}

// loadPattern reads path, or returns nil for the built-in content
func loadPattern(args []string) (*pattern.File, error) {
	if len(args) == 0 || args[0] == "demo" {
		return nil, nil
	}
	p, err := pattern.Load(args[0])
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = filepath.Base(args[0])
	}
	return p, nil
}

func playerConfig(p *pattern.File) app.Config {
	config := app.Config{
		BPM:      bpm,
		Seed:     seed,
		Output:   output.Kind(outputKind),
		WAVPath:  wavPath,
		Realtime: realtime,
		Loops:    loops,
		UseTUI:   wantTUI(),
	}
	if p != nil {
		if config.BPM == 0 {
			config.BPM = p.BPM
		}
		if config.Loops == 0 {
			config.Loops = p.Loops
		}
	}
	return config
}

// run builds a player, then submits content repeat times under the TUI
func run(config app.Config, title string, play func(ctx context.Context, p *app.Player) error) error {
	closeLog, err := setupLogging(config.UseTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Printf("Starting %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	player, err := app.New(config)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}

	produce := func(ctx context.Context) error {
		for i := 0; repeat <= 0 || i < repeat; i++ {
			err := play(ctx, player)
			if errors.Is(err, app.ErrBufferDropped) {
				log.Printf("Warning: %v", err)
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := player.Run(ctx, title, produce); err != nil {
		return err
	}

	stats := player.Stats()
	log.Printf("Done: %d submitted, %d completed, %d dropped", stats.Submitted, stats.Completed, stats.Dropped)
	return nil
}

func trackOf(p *pattern.File) (synth.Track, string, error) {
	if p == nil {
		return pattern.DemoTrack(), "demo track", nil
	}
	if p.Kind() != pattern.KindTrack {
		return synth.Track{}, "", fmt.Errorf("pattern %q is a %s, not a track", p.Name, p.Kind())
	}
	track, err := p.TrackValue()
	return track, p.Name, err
}

func runTrack(cmd *cobra.Command, args []string) error {
	p, err := loadPattern(args)
	if err != nil {
		return err
	}
	track, title, err := trackOf(p)
	if err != nil {
		return err
	}
	config := playerConfig(p)
	return run(config, title, func(ctx context.Context, player *app.Player) error {
		return player.PlayTrack(ctx, track, config.Loops)
	})
}

func runMix(cmd *cobra.Command, args []string) error {
	p, err := loadPattern(args)
	if err != nil {
		return err
	}

	voices, title := pattern.DemoMix(), "demo mix"
	if p != nil {
		if p.Kind() != pattern.KindMix {
			return fmt.Errorf("pattern %q is a %s, not a mix", p.Name, p.Kind())
		}
		voices, title = p.Mix, p.Name
	}

	config := playerConfig(p)
	return run(config, title, func(ctx context.Context, player *app.Player) error {
		return player.PlayMix(ctx, voices, config.Loops)
	})
}

func runHarmonics(cmd *cobra.Command, args []string) error {
	var (
		h     *synth.Harmonics
		p     *pattern.File
		title = "organ"
		err   error
	)

	switch {
	case len(args) == 1 && args[0] == "-", len(args) == 0 && !term.IsTerminal(int(os.Stdin.Fd())):
		h, err = readHarmonics(os.Stdin)
	case len(args) == 1:
		p, err = loadPattern(args)
		if err == nil && p == nil {
			h = pattern.DemoHarmonics()
		} else if err == nil {
			if p.Kind() != pattern.KindHarmonics {
				return fmt.Errorf("pattern %q is a %s, not harmonics", p.Name, p.Kind())
			}
			h, title = p.HarmonicSet(), p.Name
		}
	default:
		h = pattern.DemoHarmonics()
	}
	if err != nil {
		return err
	}

	config := playerConfig(p)
	return run(config, title, func(ctx context.Context, player *app.Player) error {
		return player.PlayHarmonics(ctx, h, config.Loops)
	})
}

// readHarmonics reads a harmonic, stops on 0 or end of input, then reads its
// level. A lone 0 terminates without a level.
func readHarmonics(r io.Reader) (*synth.Harmonics, error) {
	h := &synth.Harmonics{}
	in := bufio.NewReader(r)

	for {
		var multiplier float64
		if _, err := fmt.Fscan(in, &multiplier); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read harmonic: %w", err)
		}
		if multiplier == 0 {
			break
		}

		var level float64
		if _, err := fmt.Fscan(in, &level); err != nil {
			return nil, fmt.Errorf("failed to read level for harmonic %v: %w", multiplier, err)
		}
		h.Set(multiplier, level)
	}

	if h.Len() == 0 {
		return nil, fmt.Errorf("no harmonics read")
	}
	return h, nil
}

func runHit(cmd *cobra.Command, args []string) error {
	var inst synth.Instrument
	if err := inst.UnmarshalText([]byte(args[0])); err != nil {
		return err
	}

	step := synth.Step{Note: hitNote, Instrument: inst}
	if step.Note == 0 {
		step.Note = defaultNote(inst)
	}

	config := playerConfig(nil)
	opts := synth.DefaultHitOptions()

	return run(config, inst.String()+" hit", func(ctx context.Context, player *app.Player) error {
		if hitCompress {
			opts.Compressor = synth.NewCompressor(0.5, 4, player.Engine().Format().SampleRate)
		}
		return player.PlayHit(ctx, step, opts, config.Loops)
	})
}

func defaultNote(inst synth.Instrument) float64 {
	switch inst {
	case synth.Kick:
		return 60
	case synth.Snare:
		return 3000
	case synth.HiHat:
		return 14000
	default:
		return 440
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	p, err := loadPattern(args[:1])
	if err != nil {
		return err
	}

	config := playerConfig(p)
	config.Output = output.KindWAV
	config.WAVPath = args[1]
	config.UseTUI = false

	play, title, err := contentOf(p, config.Loops)
	if err != nil {
		return err
	}
	return run(config, title, play)
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := loadPattern(args)
	if err != nil {
		return err
	}

	config := playerConfig(p)
	config.Output = app.OutputSink
	config.Port = port
	config.Codec = codec
	config.EnableMDNS = enableMDNS
	config.Name = name
	if config.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		config.Name = fmt.Sprintf("%s-synth", hostname)
	}
	// Retry until interrupted: a sink with slow listeners just applies backpressure.
	config.MaxRetries = -1

	play, title, err := contentOf(p, config.Loops)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("repeat") {
		repeat = 0
	}
	return run(config, title, play)
}

// contentOf picks the play function for any pattern kind
func contentOf(p *pattern.File, loops int) (func(ctx context.Context, player *app.Player) error, string, error) {
	if p == nil {
		track := pattern.DemoTrack()
		return func(ctx context.Context, player *app.Player) error {
			return player.PlayTrack(ctx, track, loops)
		}, "demo track", nil
	}

	switch p.Kind() {
	case pattern.KindTrack:
		track, err := p.TrackValue()
		if err != nil {
			return nil, "", err
		}
		return func(ctx context.Context, player *app.Player) error {
			return player.PlayTrack(ctx, track, loops)
		}, p.Name, nil
	case pattern.KindMix:
		return func(ctx context.Context, player *app.Player) error {
			return player.PlayMix(ctx, p.Mix, loops)
		}, p.Name, nil
	default:
		h := p.HarmonicSet()
		return func(ctx context.Context, player *app.Player) error {
			return player.PlayHarmonics(ctx, h, loops)
		}, p.Name, nil
	}
}
