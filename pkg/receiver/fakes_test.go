// ABOUTME: In-memory socket and output fakes for receiver tests
// ABOUTME: Let tests feed packets one at a time and inspect opened sinks
package receiver

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/screamrx/screamrx/pkg/audio/output"
	"github.com/screamrx/screamrx/pkg/scream"
)

const waitTimeout = 2 * time.Second

var errConnReset = errors.New("connection reset by peer")

type fakeConn struct {
	packets chan []byte
	ready   chan struct{}
	closed  chan struct{}

	closeOnce sync.Once
	left      atomic.Bool
	isClosed  atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		packets: make(chan []byte),
		ready:   make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case c.ready <- struct{}{}:
	default:
	}

	select {
	case p, ok := <-c.packets:
		if !ok {
			return 0, nil, errConnReset
		}
		return copy(b, p), &net.UDPAddr{IP: net.IPv4(192, 168, 1, 10), Port: 4010}, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) Leave() error {
	c.left.Store(true)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.isClosed.Store(true)
		close(c.closed)
	})
	return nil
}

// waitReady blocks until the loop is parked in ReadFrom
func (c *fakeConn) waitReady(t *testing.T) {
	t.Helper()
	select {
	case <-c.ready:
	case <-time.After(waitTimeout):
		t.Fatal("receiver never started reading")
	}
}

// deliver hands one packet to the loop and waits until it has been handled
func (c *fakeConn) deliver(t *testing.T, packet []byte) {
	t.Helper()
	select {
	case c.packets <- packet:
	case <-time.After(waitTimeout):
		t.Fatal("receiver did not accept packet")
	}
	c.waitReady(t)
}

func (c *fakeConn) join() JoinFunc {
	return func(scream.Profile, string) (GroupConn, error) {
		return c, nil
	}
}

type fakeSink struct {
	format scream.Format
	order  binary.ByteOrder

	mu       sync.Mutex
	writes   [][]byte
	closed   int
	accept   int // bytes accepted per write, 0 = all
	writeErr error
}

func (s *fakeSink) Write(payload []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.writes = append(s.writes, append([]byte(nil), payload...))
	if s.accept > 0 && s.accept < len(payload) {
		return s.accept, nil
	}
	return len(payload), nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

func (s *fakeSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed > 0
}

type fakeBackend struct {
	mu       sync.Mutex
	sinks    []*fakeSink
	openErr  error
	writeErr error
	accept   int
}

var _ output.Backend = (*fakeBackend)(nil)

func (b *fakeBackend) Name() string { return "fake" }
func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) Open(format scream.Format, order binary.ByteOrder) (output.Sink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &fakeSink{format: format, order: order, writeErr: b.writeErr, accept: b.accept}
	b.sinks = append(b.sinks, s)
	return s, nil
}

func (b *fakeBackend) Sinks() []*fakeSink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeSink(nil), b.sinks...)
}

type fakeWakeLock struct {
	held     atomic.Bool
	acquired atomic.Int32
}

func (w *fakeWakeLock) Acquire() error {
	w.acquired.Add(1)
	w.held.Store(true)
	return nil
}

func (w *fakeWakeLock) Release() { w.held.Store(false) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// packet builds a current-profile packet
func packet(h scream.Header, payload ...byte) []byte {
	return append(h.AppendBinary(nil), payload...)
}

var (
	stereo48k = scream.Header{RateCode: 1, SampleSize: 16, Channels: 2, ChannelMapLSB: 0x03}
	mono441k  = scream.Header{RateCode: 129, SampleSize: 16, Channels: 1, ChannelMapLSB: 0x04}
	stereo24  = scream.Header{RateCode: 1, SampleSize: 24, Channels: 2, ChannelMapLSB: 0x03}
)

// startReceiver runs a receiver in the background and returns a channel with Run's result
func startReceiver(t *testing.T, cfg Config) (*Receiver, <-chan error) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Run(testContext(t)) }()
	return r, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("receiver did not stop")
		return nil
	}
}

// testContext returns a context canceled when the test finishes
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func contextWithCancel(t *testing.T) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(testContext(t))
	t.Cleanup(cancel)
	return ctx, cancel
}

func sameStatus(a, b Status) bool {
	if (a.Format == nil) != (b.Format == nil) {
		return false
	}
	if a.Format != nil && *a.Format != *b.Format {
		return false
	}
	a.Format, b.Format = nil, nil
	return a == b
}
