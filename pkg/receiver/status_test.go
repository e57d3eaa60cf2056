// ABOUTME: Tests for the status store
// ABOUTME: Snapshot isolation and state timestamps
package receiver

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/screamrx/screamrx/pkg/scream"
)

func TestStatusSnapshotIsolated(t *testing.T) {
	s := NewStatusStore()
	s.Update(func(st *Status) {
		st.Format = &scream.Format{SampleRate: 48000, SampleSize: 16, Channels: 2, ChannelMask: 0xC}
	})

	snap := s.Snapshot()
	snap.Format.SampleRate = 1

	if got := s.Snapshot().Format.SampleRate; got != 48000 {
		t.Errorf("snapshot mutation leaked into store: %d", got)
	}
}

func TestStatusSinceTracksState(t *testing.T) {
	s := NewStatusStore()
	start := s.Snapshot().Since

	time.Sleep(5 * time.Millisecond)
	s.Update(func(st *Status) { st.LastError = scream.ErrorDevice })
	if !s.Snapshot().Since.Equal(start) {
		t.Error("Since moved without a state change")
	}

	s.Update(func(st *Status) { st.State = StateReceiving })
	if !s.Snapshot().Since.After(start) {
		t.Error("Since not updated on state change")
	}
}

func TestStatusJSON(t *testing.T) {
	s := NewStatusStore()
	s.Update(func(st *Status) {
		st.Running = true
		st.State = StateReceiving
		st.LastError = scream.ErrorUnsupportedSampleSize
	})

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"state":"receiving"`, `"last_error":"UnsupportedSampleSize"`, `"running":true`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("missing %s in %s", want, data)
		}
	}
	if strings.Contains(string(data), `"format"`) {
		t.Errorf("nil format should be omitted: %s", data)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:         "idle",
		StateJoiningGroup: "joining",
		StateReceiving:    "receiving",
		StateLeavingGroup: "leaving",
		State(42):         "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d: got %q, want %q", state, got, want)
		}
	}
}
