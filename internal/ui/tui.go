// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and its command channels
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Command is a user request from the TUI
type Command int

const (
	CommandStart Command = iota
	CommandStop
)

// Controls holds channels for TUI to application communication
type Controls struct {
	Commands chan Command
	Quit     chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
		Quit:     make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		controls: controls,
	}
}

// Run creates the TUI program
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}

// Poll sends a fresh StatusMsg to p every interval until ctx is done
func Poll(ctx context.Context, p *tea.Program, interval time.Duration, status func() StatusMsg) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Send(status())
	for {
		select {
		case <-ticker.C:
			p.Send(status())
		case <-ctx.Done():
			return
		}
	}
}
