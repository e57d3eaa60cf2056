// ABOUTME: Tests for the receive loop
// ABOUTME: Reconfiguration, malformed packets, error handling and shutdown
package receiver

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/screamrx/screamrx/pkg/scream"
)

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without backend")
	}
}

func TestRepeatedHeaderOpensOnce(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	for i := 0; i < 5; i++ {
		conn.deliver(t, packet(stereo48k, byte(i), 0, byte(i), 0))
	}

	sinks := backend.Sinks()
	if len(sinks) != 1 {
		t.Fatalf("expected 1 open, got %d", len(sinks))
	}
	if got := len(sinks[0].Writes()); got != 5 {
		t.Errorf("expected 5 writes, got %d", got)
	}

	st := r.Status()
	if st.Format == nil || st.Format.SampleRate != 48000 || st.Format.Channels != 2 || st.Format.ChannelMask != 0xC {
		t.Errorf("unexpected format %+v", st.Format)
	}
	if st.State != StateReceiving || !st.Running {
		t.Errorf("expected running/receiving, got %+v", st)
	}

	r.Stop()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestShortPacketLeavesStatusAndSink(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0))
	before := r.Status()

	conn.deliver(t, []byte{0x01, 0x10})
	conn.deliver(t, nil)

	after := r.Status()
	if !sameStatus(before, after) {
		t.Errorf("status changed: before %+v after %+v", before, after)
	}

	sinks := backend.Sinks()
	if len(sinks) != 1 || len(sinks[0].Writes()) != 1 || sinks[0].Closed() {
		t.Errorf("sink disturbed by short packet: opens=%d", len(sinks))
	}
	if st := r.Stats(); st.Malformed != 2 || st.Packets != 3 {
		t.Errorf("unexpected stats %+v", st)
	}

	r.Stop()
	waitDone(t, done)
}

func TestSampleSizeChangeClosesSink(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0, 2, 0))
	conn.deliver(t, packet(stereo24, 1, 2, 3, 4, 5, 6))
	conn.deliver(t, packet(stereo24, 1, 2, 3, 4, 5, 6))

	sinks := backend.Sinks()
	if len(sinks) != 1 {
		t.Fatalf("expected no reopen for 24-bit, got %d opens", len(sinks))
	}
	if !sinks[0].Closed() {
		t.Error("16-bit sink still open after sample size change")
	}
	if got := len(sinks[0].Writes()); got != 1 {
		t.Errorf("24-bit payload reached the sink: %d writes", got)
	}

	st := r.Status()
	if st.Format != nil {
		t.Errorf("format should be cleared, got %+v", st.Format)
	}
	if st.LastError != scream.ErrorUnsupportedSampleSize {
		t.Errorf("expected UnsupportedSampleSize, got %v", st.LastError)
	}
	if !st.Running {
		t.Error("non-fatal error stopped the loop")
	}

	// back to a playable header recovers
	conn.deliver(t, packet(stereo48k, 9, 0))
	if got := len(backend.Sinks()); got != 2 {
		t.Fatalf("expected reopen after recovery, got %d opens", got)
	}
	if st := r.Status(); st.LastError != scream.ErrorNone || st.Format == nil {
		t.Errorf("recovery did not clear error: %+v", st)
	}

	r.Stop()
	waitDone(t, done)
}

func TestZeroRateIsUnsupportedFormat(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	conn.deliver(t, packet(scream.Header{RateCode: 0, SampleSize: 16, Channels: 2}, 1, 2))

	if len(backend.Sinks()) != 0 {
		t.Error("sink opened for zero rate")
	}
	if st := r.Status(); st.LastError != scream.ErrorUnsupportedFormat || st.Format != nil {
		t.Errorf("unexpected status %+v", st)
	}

	r.Stop()
	waitDone(t, done)
}

func TestFormatChangeReopens(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0))
	conn.deliver(t, packet(mono441k, 2, 0))

	sinks := backend.Sinks()
	if len(sinks) != 2 {
		t.Fatalf("expected 2 opens, got %d", len(sinks))
	}
	if !sinks[0].Closed() {
		t.Error("old sink not closed before reopen")
	}
	if sinks[1].format.SampleRate != 44100 || sinks[1].format.ChannelMask != 0x4 {
		t.Errorf("unexpected second format %+v", sinks[1].format)
	}
	if st := r.Stats(); st.Reconfigurations != 2 {
		t.Errorf("expected 2 reconfigurations, got %d", st.Reconfigurations)
	}

	r.Stop()
	waitDone(t, done)
}

func TestOpenFailureSkipsUntilHeaderChanges(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{openErr: errors.New("no device")}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0))
	conn.deliver(t, packet(stereo48k, 1, 0))

	st := r.Status()
	if st.LastError != scream.ErrorDevice || st.Format != nil {
		t.Errorf("unexpected status %+v", st)
	}
	if !st.Running {
		t.Error("device error stopped the loop")
	}

	backend.mu.Lock()
	backend.openErr = nil
	backend.mu.Unlock()

	// same header: no retry
	conn.deliver(t, packet(stereo48k, 1, 0))
	if len(backend.Sinks()) != 0 {
		t.Fatal("open retried without a header change")
	}

	conn.deliver(t, packet(mono441k, 1, 0))
	if len(backend.Sinks()) != 1 {
		t.Fatal("header change did not reopen")
	}

	r.Stop()
	waitDone(t, done)
}

func TestWriteFailureClosesSink(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{writeErr: errors.New("device unplugged")}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0))

	sinks := backend.Sinks()
	if len(sinks) != 1 || !sinks[0].Closed() {
		t.Fatal("sink not closed after write failure")
	}
	if st := r.Status(); st.LastError != scream.ErrorDevice || st.Format != nil {
		t.Errorf("unexpected status %+v", st)
	}

	r.Stop()
	waitDone(t, done)
}

func TestDroppedBytesCounted(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{accept: 2}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0, 2, 0, 3, 0))

	if st := r.Stats(); st.PayloadBytes != 2 || st.DroppedBytes != 4 {
		t.Errorf("unexpected stats %+v", st)
	}

	r.Stop()
	waitDone(t, done)
}

func TestOddPayloadDropsTrailingByte(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0, 2, 0, 3))
	conn.deliver(t, packet(stereo48k, 7))
	conn.deliver(t, packet(stereo48k, 4, 0, 5, 0))

	sinks := backend.Sinks()
	if len(sinks) != 1 {
		t.Fatalf("expected 1 open, got %d", len(sinks))
	}
	writes := sinks[0].Writes()
	if len(writes) != 2 || len(writes[0]) != 4 || len(writes[1]) != 4 {
		t.Fatalf("expected two 4-byte writes, got %v", writes)
	}

	st := r.Stats()
	if st.PayloadBytes != 8 || st.DroppedBytes != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
	if status := r.Status(); status.State != StateReceiving || status.LastError != scream.ErrorNone {
		t.Errorf("odd payload disturbed status %+v", status)
	}

	r.Stop()
	waitDone(t, done)
}

func TestOversizeDatagramTruncated(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	full := packet(stereo48k, make([]byte, scream.MaxPayloadSize)...)
	conn.deliver(t, full)
	conn.deliver(t, append(full, 0xAA, 0xBB, 0xCC))
	conn.deliver(t, packet(stereo48k, 1, 0))

	writes := backend.Sinks()[0].Writes()
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(writes))
	}
	for i, w := range writes[:2] {
		if len(w) != scream.MaxPayloadSize {
			t.Errorf("write %d: expected %d bytes, got %d", i, scream.MaxPayloadSize, len(w))
		}
	}

	st := r.Stats()
	if st.Packets != 3 || st.Malformed != 0 || st.DroppedBytes != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.PayloadBytes != 2*scream.MaxPayloadSize+2 {
		t.Errorf("unexpected payload bytes %d", st.PayloadBytes)
	}

	r.Stop()
	waitDone(t, done)
}

func TestStopWhileBlocked(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	wl := &fakeWakeLock{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join(), WakeLock: wl})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0))
	if !wl.held.Load() {
		t.Error("wake lock not held while receiving")
	}

	r.Stop()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("requested stop returned %v", err)
	}

	st := r.Status()
	if st.Running || st.State != StateIdle || st.Format != nil {
		t.Errorf("unexpected status after stop %+v", st)
	}
	if st.LastError != scream.ErrorNone {
		t.Errorf("stop left error %v", st.LastError)
	}
	if !conn.isClosed.Load() || !conn.left.Load() {
		t.Error("socket not released")
	}
	if !backend.Sinks()[0].Closed() {
		t.Error("sink not released")
	}
	if wl.held.Load() {
		t.Error("wake lock not released")
	}
}

func TestStopBeforeRun(t *testing.T) {
	conn := newFakeConn()
	r, err := New(Config{Backend: &fakeBackend{}, Join: conn.join(), Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	r.Stop()

	if err := r.Run(testContext(t)); err != nil {
		t.Fatalf("Run after Stop returned %v", err)
	}
	if st := r.Status(); st.Running {
		t.Error("still running")
	}
}

func TestContextCancelStops(t *testing.T) {
	conn := newFakeConn()
	r, err := New(Config{Backend: &fakeBackend{}, Join: conn.join(), Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := contextWithCancel(t)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	conn.waitReady(t)
	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("cancel returned %v", err)
	}
}

func TestTransportErrorIsFatal(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	wl := &fakeWakeLock{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join(), WakeLock: wl})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0))
	close(conn.packets)

	err := waitDone(t, done)
	if !errors.Is(err, scream.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}

	st := r.Status()
	if st.Running || st.LastError != scream.ErrorTransport {
		t.Errorf("unexpected status %+v", st)
	}
	if !backend.Sinks()[0].Closed() || !conn.isClosed.Load() || wl.held.Load() {
		t.Error("resources not released after transport error")
	}
}

func TestJoinFailure(t *testing.T) {
	join := func(scream.Profile, string) (GroupConn, error) {
		return nil, errors.New("address already in use")
	}
	r, err := New(Config{Backend: &fakeBackend{}, Join: join, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}

	err = r.Run(testContext(t))
	if !errors.Is(err, scream.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if st := r.Status(); st.Running || st.LastError != scream.ErrorTransport {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSilenceThenToneInOrder(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	r, done := startReceiver(t, Config{Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	var sent [][]byte
	for i := 0; i < 10; i++ {
		payload := make([]byte, 16)
		if i >= 5 {
			for j := range payload {
				payload[j] = byte(i*16 + j)
			}
		}
		sent = append(sent, payload)
		conn.deliver(t, packet(stereo48k, payload...))
	}

	sinks := backend.Sinks()
	if len(sinks) != 1 {
		t.Fatalf("expected 1 open, got %d", len(sinks))
	}
	writes := sinks[0].Writes()
	if len(writes) != len(sent) {
		t.Fatalf("expected %d writes, got %d", len(sent), len(writes))
	}
	for i := range sent {
		if !bytes.Equal(writes[i], sent[i]) {
			t.Errorf("write %d out of order or altered", i)
		}
	}

	r.Stop()
	waitDone(t, done)
}

func TestLegacyProfile(t *testing.T) {
	conn := newFakeConn()
	backend := &fakeBackend{}
	r, done := startReceiver(t, Config{Profile: scream.Legacy, Backend: backend, Join: conn.join()})

	conn.waitReady(t)
	pkt := scream.Legacy.AppendHeader(nil, scream.LegacyHeader)
	pkt = append(pkt, 0x00, 0x01, 0xFF, 0xFF)
	conn.deliver(t, pkt)
	conn.deliver(t, pkt)

	sinks := backend.Sinks()
	if len(sinks) != 1 {
		t.Fatalf("expected 1 open, got %d", len(sinks))
	}
	if sinks[0].order != binary.BigEndian {
		t.Error("legacy payload should be big-endian")
	}
	if f := sinks[0].format; f.SampleRate != 48000 || f.Channels != 2 {
		t.Errorf("unexpected legacy format %+v", f)
	}
	if got := sinks[0].Writes(); len(got) != 2 || !bytes.Equal(got[0], []byte{0x00, 0x01, 0xFF, 0xFF}) {
		t.Errorf("unexpected legacy payloads %v", got)
	}
	if st := r.Status(); st.Profile != "legacy" {
		t.Errorf("expected legacy profile in status, got %q", st.Profile)
	}

	// shorter than the 12-byte header
	conn.deliver(t, make([]byte, 8))
	if st := r.Stats(); st.Malformed != 1 {
		t.Errorf("expected 1 malformed, got %d", st.Malformed)
	}

	r.Stop()
	waitDone(t, done)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	conn := newFakeConn()
	r, done := startReceiver(t, Config{Backend: &fakeBackend{}, Join: conn.join(), Metrics: m})

	conn.waitReady(t)
	conn.deliver(t, packet(stereo48k, 1, 0, 2, 0))
	conn.deliver(t, []byte{1})
	conn.deliver(t, packet(stereo24, 1, 2, 3))

	if got := testutil.ToFloat64(m.packets); got != 3 {
		t.Errorf("packets = %v", got)
	}
	if got := testutil.ToFloat64(m.malformed); got != 1 {
		t.Errorf("malformed = %v", got)
	}
	if got := testutil.ToFloat64(m.payloadBytes); got != 4 {
		t.Errorf("payload bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("UnsupportedSampleSize")); got != 1 {
		t.Errorf("sample size errors = %v", got)
	}
	if got := testutil.ToFloat64(m.running); got != 1 {
		t.Errorf("running = %v", got)
	}

	r.Stop()
	waitDone(t, done)

	if got := testutil.ToFloat64(m.running); got != 0 {
		t.Errorf("running after stop = %v", got)
	}
	if got := testutil.ToFloat64(m.sampleRate); got != 0 {
		t.Errorf("sample rate after stop = %v", got)
	}
}

func TestSharedCountersAcrossRuns(t *testing.T) {
	counters := &Counters{}
	for i := 0; i < 2; i++ {
		conn := newFakeConn()
		r, done := startReceiver(t, Config{Backend: &fakeBackend{}, Join: conn.join(), Counters: counters})
		conn.waitReady(t)
		conn.deliver(t, packet(stereo48k, 1, 0))
		r.Stop()
		waitDone(t, done)
	}
	if st := counters.Snapshot(); st.Packets != 2 || st.Reconfigurations != 2 {
		t.Errorf("unexpected counters %+v", st)
	}
}
