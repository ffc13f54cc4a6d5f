// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and polls a status source
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RefreshInterval is how often the monitor polls its status source
const RefreshInterval = 200 * time.Millisecond

// VolumeChange is sent when the user adjusts the output
type VolumeChange struct {
	Volume int
	Muted  bool
}

// Control carries user input out of the TUI
type Control struct {
	Volume chan VolumeChange
	Quit   chan struct{}
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Volume: make(chan VolumeChange, 10),
		Quit:   make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(title string, ctrl *Control) Model {
	return Model{
		title:     title,
		volume:    100,
		startTime: time.Now(),
		control:   ctrl,
	}
}

// Monitor runs the TUI against a status source
type Monitor struct {
	program *tea.Program
	source  func() StatusMsg
}

// NewMonitor creates a monitor. source is polled every RefreshInterval.
func NewMonitor(title string, ctrl *Control, source func() StatusMsg, opts ...tea.ProgramOption) *Monitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &Monitor{
		program: tea.NewProgram(NewModel(title, ctrl), opts...),
		source:  source,
	}
}

// Run blocks until the user quits or ctx ends
func (m *Monitor) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				m.program.Quit()
				return
			case <-ticker.C:
				if m.source != nil {
					m.program.Send(m.source())
				}
			}
		}
	}()

	_, err := m.program.Run()
	return err
}
