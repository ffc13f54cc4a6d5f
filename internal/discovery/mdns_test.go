// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests configuration defaults and entry parsing
package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestNewManagerDefaults(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Test Sink", Port: 8927})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	defer mgr.Stop()

	if mgr.config.Path != DefaultPath {
		t.Errorf("expected path %s, got %s", DefaultPath, mgr.config.Path)
	}
	if mgr.config.Codec != "pcm" {
		t.Errorf("expected codec pcm, got %s", mgr.config.Codec)
	}
	if mgr.config.BrowseTimeout != 3*time.Second {
		t.Errorf("expected 3s browse timeout, got %v", mgr.config.BrowseTimeout)
	}
}

func TestTXTRecords(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Test Sink", Port: 8927, Codec: "opus"})
	defer mgr.Stop()

	records := mgr.txtRecords()
	if len(records) != 2 || records[0] != "path=/stream" || records[1] != "codec=opus" {
		t.Errorf("unexpected txt records: %v", records)
	}
}

func TestSinkFromEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *mdns.ServiceEntry
		expected *SinkInfo
	}{
		{
			name:     "nil entry",
			entry:    nil,
			expected: nil,
		},
		{
			name:     "no ipv4",
			entry:    &mdns.ServiceEntry{Name: "sink", Port: 8927},
			expected: nil,
		},
		{
			name: "defaults",
			entry: &mdns.ServiceEntry{
				Name:   "sink",
				AddrV4: net.ParseIP("192.168.1.20"),
				Port:   8927,
			},
			expected: &SinkInfo{Name: "sink", Host: "192.168.1.20", Port: 8927, Path: "/stream", Codec: "pcm"},
		},
		{
			name: "txt fields",
			entry: &mdns.ServiceEntry{
				Name:       "sink",
				AddrV4:     net.ParseIP("10.0.0.5"),
				Port:       9000,
				InfoFields: []string{"path=/live", "codec=opus", "garbage"},
			},
			expected: &SinkInfo{Name: "sink", Host: "10.0.0.5", Port: 9000, Path: "/live", Codec: "opus"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sinkFromEntry(tt.entry)
			if tt.expected == nil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil || *got != *tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestSinkURL(t *testing.T) {
	sink := &SinkInfo{Host: "10.0.0.5", Port: 9000, Path: "/stream"}
	if sink.URL() != "ws://10.0.0.5:9000/stream" {
		t.Errorf("unexpected url: %s", sink.URL())
	}
}

func TestGetLocalIPs(t *testing.T) {
	ips, err := getLocalIPs()
	if err != nil {
		t.Fatalf("failed to list local IPs: %v", err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.To4() == nil {
			t.Errorf("unexpected address %v", ip)
		}
	}
}
