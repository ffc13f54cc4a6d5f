// ABOUTME: Bubbletea model for the playback monitor TUI
// ABOUTME: Shows pool slot occupancy, counters, listeners and volume
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-synth/pkg/playback"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	// What is playing
	title string
	mode  string

	// Stream
	codec      string
	sampleRate int
	channels   int
	bitDepth   int

	// Pool
	stats   playback.Stats
	dropped uint64

	// Sink only
	listeners []string

	// Output
	volume int
	muted  bool

	showDetail bool
	quitting   bool
	startTime  time.Time

	control *Control

	width  int
	height int
}

// StatusMsg updates TUI state. Zero fields leave the model unchanged.
type StatusMsg struct {
	Title      string
	Mode       string
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
	Stats      *playback.Stats
	Dropped    uint64
	Listeners  []string
}

type tickMsg time.Time

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, tickEvery()
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Draining buffers...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Resonate Synth"))
	b.WriteString("\n\n")

	m.field(&b, "Playing: ", m.title)
	if m.mode != "" {
		m.field(&b, "Output:  ", m.mode)
	}
	if m.codec != "" {
		m.field(&b, "Format:  ", fmt.Sprintf("%s %dHz %s %d-bit", m.codec, m.sampleRate, channelName(m.channels), m.bitDepth))
	}
	m.field(&b, "Uptime:  ", time.Since(m.startTime).Round(time.Second).String())
	b.WriteString("\n")

	b.WriteString(m.renderSlots())
	b.WriteString(m.renderStats())

	if m.listeners != nil {
		b.WriteString(m.renderListeners())
	}

	b.WriteString(m.renderVolume())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓:Volume  m:Mute  d:Detail  q:Quit"))

	return b.String()
}

func (m Model) field(b *strings.Builder, label, value string) {
	b.WriteString(headerStyle.Render(label))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

// renderSlots draws one cell per pool slot
func (m Model) renderSlots() string {
	capacity := m.stats.Capacity
	if capacity == 0 {
		capacity = playback.Capacity
	}

	var cells strings.Builder
	for i := 0; i < capacity; i++ {
		if i < m.stats.InFlight {
			cells.WriteString(busyStyle.Render("■"))
		} else {
			cells.WriteString(valueStyle.Render("□"))
		}
	}

	return headerStyle.Render("Slots:   ") + cells.String() +
		valueStyle.Render(fmt.Sprintf(" %d/%d in flight", m.stats.InFlight, capacity)) + "\n"
}

// renderStats renders pool counters
func (m Model) renderStats() string {
	s := headerStyle.Render("Buffers: ") +
		valueStyle.Render(fmt.Sprintf("submitted %d  completed %d", m.stats.Submitted, m.stats.Completed)) + "\n"

	if m.showDetail || m.dropped > 0 || m.stats.Rejected > 0 {
		line := fmt.Sprintf("rejected %d  skipped %d  dropped %d", m.stats.Rejected, m.stats.Skipped, m.dropped)
		style := valueStyle
		if m.dropped > 0 {
			style = warnStyle
		}
		s += headerStyle.Render("         ") + style.Render(line) + "\n"
	}
	return s
}

func (m Model) renderListeners() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(busyStyle.Bold(true).Render(fmt.Sprintf("Listeners (%d)", len(m.listeners))))
	b.WriteString("\n")

	if len(m.listeners) == 0 {
		b.WriteString(valueStyle.Render("  No listeners connected"))
		b.WriteString("\n")
	}
	for _, name := range m.listeners {
		b.WriteString(fmt.Sprintf("  • %s\n", truncate(name, 40)))
	}
	return b.String()
}

func (m Model) renderVolume() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}
	return "\n" + headerStyle.Render("Volume:  ") +
		valueStyle.Render(fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteIcon)) + "\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.control != nil {
			select {
			case m.control.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		m.sendVolume()
	case "down":
		m.volume = max(m.volume-5, 0)
		m.sendVolume()
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "d":
		m.showDetail = !m.showDetail
	}

	return m, nil
}

func (m Model) sendVolume() {
	if m.control == nil {
		return
	}
	select {
	case m.control.Volume <- VolumeChange{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Title != "" {
		m.title = msg.Title
	}
	if msg.Mode != "" {
		m.mode = msg.Mode
	}
	if msg.Codec != "" {
		m.codec = msg.Codec
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
		m.bitDepth = msg.BitDepth
	}
	if msg.Stats != nil {
		m.stats = *msg.Stats
	}
	if msg.Dropped != 0 {
		m.dropped = msg.Dropped
	}
	if msg.Listeners != nil {
		m.listeners = msg.Listeners
	}
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}
