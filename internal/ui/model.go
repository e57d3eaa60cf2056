// ABOUTME: Bubbletea model for the receiver TUI
// ABOUTME: Renders receiver state, format, counters and start/stop keys
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/screamrx/screamrx/pkg/receiver"
	"github.com/screamrx/screamrx/pkg/scream"
)

// Model represents the TUI state
type Model struct {
	// Receiver
	running   bool
	state     receiver.State
	profile   string
	session   string
	listening string

	// Format
	sampleRate  uint32
	sampleSize  uint8
	channels    uint8
	channelMask uint32

	// Errors
	lastError    scream.ErrorKind
	lastErrorMsg string

	// Stats
	packets          int64
	malformed        int64
	reconfigurations int64
	payloadBytes     int64
	droppedBytes     int64

	// Debug
	showDebug bool

	controls *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderFormat()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders service state
func (m Model) renderHeader() string {
	service := "Stopped"
	if m.running {
		service = "Running (" + m.state.String() + ")"
	}

	errText := "none"
	if m.lastError != scream.ErrorNone {
		errText = m.lastError.String()
	}

	return fmt.Sprintf(`┌─ Scream Receiver ────────────────────────────────────┐
│ Service: %-44s │
│ Group:   %-44s │
│ Error:   %-44s │
├──────────────────────────────────────────────────────┤
`, service, truncate(m.listening, 44), truncate(errText, 44))
}

// renderFormat renders the active output format
func (m Model) renderFormat() string {
	if m.sampleRate == 0 {
		return "│ No stream                                            │\n"
	}

	return fmt.Sprintf("│ Rate:     %-42s │\n"+
		"│ Sample:   %-42s │\n"+
		"│ Channels: %-42s │\n",
		formatKHz(m.sampleRate),
		fmt.Sprintf("%d-bit", m.sampleSize),
		fmt.Sprintf("%s (mask %#x)", channelName(m.channels), m.channelMask))
}

// renderStats renders receive counters
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ RX: %-10d Malformed: %-8d Reconfig: %-8d │
│ Bytes: %-12d Dropped: %-20d │
`, m.packets, m.malformed, m.reconfigurations, m.payloadBytes, m.droppedBytes)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ s:Start  x:Stop  d:Debug  q:Quit                     │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders session details
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Profile: %-41s │
│   Session: %-41s │
│   Detail:  %-41s │
`, m.profile, truncate(m.session, 41), truncate(m.lastErrorMsg, 41))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "s":
		m.send(CommandStart)
	case "x":
		m.send(CommandStop)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) send(cmd Command) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Commands <- cmd:
	default:
	}
}

// applyStatus replaces the model's view of the receiver
func (m *Model) applyStatus(msg StatusMsg) {
	st := msg.Status
	m.running = st.Running
	m.state = st.State
	m.profile = st.Profile
	m.session = st.SessionID
	m.lastError = st.LastError
	m.lastErrorMsg = st.LastErrorMessage

	if msg.Listening != "" {
		m.listening = msg.Listening
	}

	if f := st.Format; f != nil {
		m.sampleRate = f.SampleRate
		m.sampleSize = f.SampleSize
		m.channels = f.Channels
		m.channelMask = f.ChannelMask
	} else {
		m.sampleRate, m.sampleSize, m.channels, m.channelMask = 0, 0, 0, 0
	}

	m.packets = msg.Stats.Packets
	m.malformed = msg.Stats.Malformed
	m.reconfigurations = msg.Stats.Reconfigurations
	m.payloadBytes = msg.Stats.PayloadBytes
	m.droppedBytes = msg.Stats.DroppedBytes
}

// StatusMsg updates TUI state from a status poll
type StatusMsg struct {
	Status    receiver.Status
	Stats     receiver.Stats
	Listening string
}

// Utility functions
func formatKHz(rate uint32) string {
	return fmt.Sprintf("%.1f kHz", float64(rate)/1000)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels uint8) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}
