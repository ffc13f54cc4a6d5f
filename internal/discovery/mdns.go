// ABOUTME: mDNS service discovery for synth sinks
// ABOUTME: Sinks advertise _resonate-synth._tcp and listeners browse for them
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service type advertised by sinks
const ServiceType = "_resonate-synth._tcp"

// DefaultPath is the websocket path advertised when none is configured
const DefaultPath = "/stream"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
	Codec       string

	// BrowseTimeout bounds one mDNS query round.
	BrowseTimeout time.Duration
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
	sinks  chan *SinkInfo
}

// SinkInfo describes a discovered sink
type SinkInfo struct {
	Name  string
	Host  string
	Port  int
	Path  string
	Codec string
}

// URL returns the websocket URL of the sink
func (s *SinkInfo) URL() string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(s.Host, fmt.Sprint(s.Port)), s.Path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Codec == "" {
		config.Codec = "pcm"
	}
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		ctx:    ctx,
		cancel: cancel,
		sinks:  make(chan *SinkInfo, 10),
	}
}

// txtRecords returns the TXT records advertised with the service
func (m *Manager) txtRecords() []string {
	return []string{
		"path=" + m.config.Path,
		"codec=" + m.config.Codec,
	}
}

// Advertise advertises this sink via mDNS
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for sinks until Stop is called
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for sinks
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				sink := sinkFromEntry(entry)
				if sink == nil {
					continue
				}

				log.Printf("Discovered sink: %s at %s:%d", sink.Name, sink.Host, sink.Port)

				select {
				case m.sinks <- sink:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = m.config.BrowseTimeout
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
	}
}

// sinkFromEntry converts an mDNS entry, returning nil for unusable entries
func sinkFromEntry(entry *mdns.ServiceEntry) *SinkInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}

	sink := &SinkInfo{
		Name:  entry.Name,
		Host:  entry.AddrV4.String(),
		Port:  entry.Port,
		Path:  DefaultPath,
		Codec: "pcm",
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			sink.Path = value
		case "codec":
			sink.Codec = value
		}
	}
	return sink
}

// Sinks returns the channel of discovered sinks
func (m *Manager) Sinks() <-chan *SinkInfo {
	return m.sinks
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
