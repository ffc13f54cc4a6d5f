// ABOUTME: WAV file output device
// ABOUTME: Encodes submitted buffers with go-audio/wav on a writer goroutine
package output

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/Resonate-Protocol/resonate-synth/pkg/audio"
	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV writes every submitted buffer, repeated per loop, to a PCM WAV file
type WAV struct {
	path string

	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	format  audio.Format
	done    func(*playback.Header)
	jobs    chan *playback.Header
	wg      sync.WaitGroup
	frames  int
	err     error
}

// NewWAV creates a WAV output writing to path
func NewWAV(path string) *WAV {
	return &WAV{path: path}
}

// Open creates the file and starts the writer goroutine
func (w *WAV) Open(format audio.Format, done func(*playback.Header)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return fmt.Errorf("wav output already open")
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", w.path, err)
	}

	w.file = f
	w.encoder = wav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, 1)
	w.format = format
	w.done = done
	w.jobs = make(chan *playback.Header, playback.Capacity)

	w.wg.Add(1)
	go w.run()

	log.Printf("WAV output opened: %s (%dHz, %d channels)", w.path, format.SampleRate, format.Channels)
	return nil
}

func (w *WAV) run() {
	defer w.wg.Done()

	for h := range w.jobs {
		if err := w.encode(h); err != nil {
			log.Printf("WAV encode failed for slot %d: %v", h.Slot, err)
			w.mu.Lock()
			if w.err == nil {
				w.err = err
			}
			w.mu.Unlock()
		}
		w.done(h)
	}
}

func (w *WAV) encode(h *playback.Header) error {
	data, ok := h.Opaque.([]int)
	if !ok {
		data = toInts(h.Samples)
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: w.format.Channels,
			SampleRate:  w.format.SampleRate,
		},
		Data:           data,
		SourceBitDepth: w.format.BitDepth,
	}

	loops := h.Loops
	if loops < 1 {
		loops = 1
	}
	for i := 0; i < loops; i++ {
		if err := w.encoder.Write(buf); err != nil {
			return fmt.Errorf("failed to write samples: %w", err)
		}
	}

	w.mu.Lock()
	w.frames += h.Frames(w.format.Channels) * loops
	w.mu.Unlock()
	return nil
}

// Prepare converts samples to the encoder's integer layout
func (w *WAV) Prepare(h *playback.Header) error {
	h.Opaque = toInts(h.Samples)
	return nil
}

// Unprepare drops the converted samples
func (w *WAV) Unprepare(h *playback.Header) error {
	h.Opaque = nil
	return nil
}

// Write queues a header for encoding
func (w *WAV) Write(h *playback.Header) error {
	w.mu.Lock()
	jobs := w.jobs
	err := w.err
	w.mu.Unlock()

	if jobs == nil {
		return fmt.Errorf("wav output not open")
	}
	if err != nil {
		return err
	}

	select {
	case jobs <- h:
		return nil
	default:
		return fmt.Errorf("wav writer queue full")
	}
}

// Frames returns the number of frames written so far
func (w *WAV) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close drains the writer, finalizes the header and closes the file
func (w *WAV) Close() error {
	w.mu.Lock()
	jobs := w.jobs
	w.jobs = nil
	w.mu.Unlock()

	if jobs == nil {
		return nil
	}
	close(jobs)
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.encoder.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, err)
	}
	w.file = nil

	log.Printf("WAV output closed: %s (%d frames)", w.path, w.frames)
	return nil
}

func toInts(samples []int16) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = int(s)
	}
	return out
}
