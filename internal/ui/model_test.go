// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling and rendering
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/screamrx/screamrx/pkg/receiver"
	"github.com/screamrx/screamrx/pkg/scream"
)

func playing() StatusMsg {
	return StatusMsg{
		Status: receiver.Status{
			Running: true,
			State:   receiver.StateReceiving,
			Profile: "scream",
			Format:  &scream.Format{SampleRate: 44100, SampleSize: 16, Channels: 2, ChannelMask: 0xC},
		},
		Stats:     receiver.Stats{Packets: 1000, Malformed: 3, Reconfigurations: 1, PayloadBytes: 1152000},
		Listening: "239.255.77.77:4010",
	}
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil)

	if model.running {
		t.Error("expected running to be false initially")
	}
	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
	if model.sampleRate != 0 {
		t.Error("expected no format initially")
	}
}

func TestApplyStatus(t *testing.T) {
	model := NewModel(nil)
	model.applyStatus(playing())

	if !model.running || model.state != receiver.StateReceiving {
		t.Errorf("unexpected state running=%v state=%v", model.running, model.state)
	}
	if model.sampleRate != 44100 || model.sampleSize != 16 || model.channels != 2 {
		t.Errorf("unexpected format %d/%d/%d", model.sampleRate, model.sampleSize, model.channels)
	}
	if model.packets != 1000 || model.malformed != 3 {
		t.Errorf("unexpected stats %d/%d", model.packets, model.malformed)
	}
	if model.listening != "239.255.77.77:4010" {
		t.Errorf("unexpected listening %q", model.listening)
	}
}

func TestApplyStatusClearsFormat(t *testing.T) {
	model := NewModel(nil)
	model.applyStatus(playing())

	stopped := StatusMsg{Status: receiver.Status{LastError: scream.ErrorTransport}}
	model.applyStatus(stopped)

	if model.running || model.sampleRate != 0 || model.channels != 0 {
		t.Error("format should be cleared when the receiver stops")
	}
	if model.lastError != scream.ErrorTransport {
		t.Errorf("expected transport error, got %v", model.lastError)
	}
	if model.listening == "" {
		t.Error("listening address should be kept when not sent")
	}
}

func TestKeysSendCommands(t *testing.T) {
	controls := NewControls()
	var m tea.Model = NewModel(controls)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})

	if got := <-controls.Commands; got != CommandStart {
		t.Errorf("expected start, got %v", got)
	}
	if got := <-controls.Commands; got != CommandStop {
		t.Errorf("expected stop, got %v", got)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	select {
	case <-controls.Quit:
	default:
		t.Error("quit not signalled")
	}
}

func TestKeysWithoutControls(t *testing.T) {
	m := NewModel(nil)
	// must not block or panic
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
}

func TestDebugToggle(t *testing.T) {
	var m tea.Model = NewModel(nil)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	if !m.(Model).showDebug {
		t.Error("debug not toggled on")
	}
}

func TestView(t *testing.T) {
	var m tea.Model = NewModel(nil)
	if got := m.View(); got != "Loading..." {
		t.Errorf("expected loading view, got %q", got)
	}

	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	if !strings.Contains(m.View(), "No stream") {
		t.Error("idle view should say no stream")
	}

	m, _ = m.Update(playing())
	view := m.View()
	for _, want := range []string{"44.1 kHz", "16-bit", "Stereo", "Running (receiving)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestFormatKHz(t *testing.T) {
	tests := map[uint32]string{
		48000:  "48.0 kHz",
		44100:  "44.1 kHz",
		96000:  "96.0 kHz",
		352800: "352.8 kHz",
	}
	for rate, want := range tests {
		if got := formatKHz(rate); got != want {
			t.Errorf("formatKHz(%d) = %q, want %q", rate, got, want)
		}
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"this is longer than allowed", 10, "this is..."},
		{"", 10, ""},
		{"abcd", 4, "abcd"},
		{"abcde", 4, "a..."},
	}

	for _, tt := range tests {
		if result := truncate(tt.input, tt.maxLen); result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestChannelNameFunction(t *testing.T) {
	tests := []struct {
		channels uint8
		expected string
	}{
		{1, "Mono"},
		{2, "Stereo"},
		{6, "6 channels"},
	}

	for _, tt := range tests {
		if result := channelName(tt.channels); result != tt.expected {
			t.Errorf("channelName(%d) = %q, expected %q", tt.channels, result, tt.expected)
		}
	}
}
