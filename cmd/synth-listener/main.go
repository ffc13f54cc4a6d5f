// ABOUTME: Entry point for the synth network listener
// ABOUTME: Connects to a sink, plays its buffers locally, and acknowledges them
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/internal/client"
	"github.com/Resonate-Protocol/resonate-synth/internal/discovery"
	"github.com/Resonate-Protocol/resonate-synth/internal/version"
	"github.com/Resonate-Protocol/resonate-synth/pkg/audio/output"
)

var (
	serverAddr = flag.String("server", "", "Manual sink address host:port (skip mDNS)")
	name       = flag.String("name", "", "Listener friendly name (default: hostname-synth-listener)")
	outputKind = flag.String("output", string(output.KindOto), "Output device (oto, headless)")
	codecs     = flag.String("codecs", "pcm,opus", "Comma separated codecs to accept")
	logFile    = flag.String("log-file", "synth-listener.log", "Log file path")
	timeout    = flag.Duration("discover-timeout", 10*time.Second, "How long to browse mDNS for a sink")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	listenerName := *name
	if listenerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		listenerName = fmt.Sprintf("%s-synth-listener", hostname)
	}

	log.Printf("Starting %s listener: %s", version.String(), listenerName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config := client.Config{
		ServerAddr: *serverAddr,
		Name:       listenerName,
		Codecs:     strings.Split(*codecs, ","),
	}

	if config.ServerAddr == "" {
		log.Printf("Starting sink discovery...")
		discoverCtx, cancel := context.WithTimeout(ctx, *timeout)
		sink, err := client.Discover(discoverCtx)
		cancel()
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		config.ServerAddr = net.JoinHostPort(sink.Host, strconv.Itoa(sink.Port))
		if sink.Path != "" && sink.Path != discovery.DefaultPath {
			config.Path = sink.Path
		}
		log.Printf("Discovered sink %s at %s", sink.Name, config.ServerAddr)
	}

	device, err := output.New(output.Options{Kind: output.Kind(*outputKind), Realtime: true})
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}

	c := client.NewClient(config)
	if err := c.Connect(); err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	log.Printf("Connected to sink: %s", c.SinkName())

	player := client.NewPlayer(c, device, client.PlayerConfig{})
	if err := player.Run(ctx); err != nil {
		log.Printf("Player error: %v", err)
	}

	stats := player.Stats()
	log.Printf("Listener stopped: %d played, %d rejected", stats.Completed, stats.Rejected)
}
