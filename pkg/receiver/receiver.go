// ABOUTME: Receive-decode-reconfigure-playback loop
// ABOUTME: One Receiver per run; Stop unblocks a pending read by closing the socket
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/screamrx/screamrx/pkg/audio/output"
	"github.com/screamrx/screamrx/pkg/scream"
)

// bytesPerSample is fixed: only 16-bit formats reach a sink
const bytesPerSample = scream.SupportedSampleSize / 8

// WakeLock keeps the host awake while the loop runs
type WakeLock interface {
	Acquire() error
	Release()
}

// Config configures a Receiver
type Config struct {
	Profile   scream.Profile
	Interface string
	Backend   output.Backend

	// Join defaults to JoinMulticast
	Join JoinFunc

	// Optional collaborators
	WakeLock WakeLock
	Status   *StatusStore
	Counters *Counters
	Metrics  *Metrics

	SessionID string

	// Realtime locks the loop to an OS thread and raises its priority
	Realtime bool

	Logger *slog.Logger
}

// Receiver runs the receive loop once
type Receiver struct {
	cfg      Config
	log      *slog.Logger
	status   *StatusStore
	counters *Counters
	metrics  *Metrics

	stopping atomic.Bool
	connMu   sync.Mutex
	conn     GroupConn

	// owned by the goroutine executing Run
	sink       output.Sink
	header     scream.Header
	haveHeader bool
}

// New creates a Receiver
func New(cfg Config) (*Receiver, error) {
	if cfg.Backend == nil {
		return nil, errors.New("receiver: output backend is required")
	}
	if cfg.Profile.HeaderSize == 0 {
		cfg.Profile = scream.Current
	}
	if cfg.Join == nil {
		cfg.Join = JoinMulticast
	}
	if cfg.Status == nil {
		cfg.Status = NewStatusStore()
	}
	if cfg.Counters == nil {
		cfg.Counters = &Counters{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Receiver{
		cfg:      cfg,
		log:      cfg.Logger.With("component", "receiver", "profile", cfg.Profile.Name),
		status:   cfg.Status,
		counters: cfg.Counters,
		metrics:  cfg.Metrics,
	}, nil
}

// Status returns the current snapshot
func (r *Receiver) Status() Status {
	return r.status.Snapshot()
}

// Stats returns the current counters
func (r *Receiver) Stats() Stats {
	return r.counters.Snapshot()
}

// Run executes the loop until Stop, ctx cancellation or a transport failure.
// It returns nil on a requested stop and an ErrTransport error otherwise.
func (r *Receiver) Run(ctx context.Context) (err error) {
	if r.cfg.Realtime {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if perr := raisePriority(); perr != nil {
			r.log.Debug("could not raise thread priority", "err", perr)
		}
	}

	stopOnCancel := context.AfterFunc(ctx, r.Stop)
	defer stopOnCancel()

	r.status.Update(func(s *Status) {
		s.Running = true
		s.State = StateJoiningGroup
		s.SessionID = r.cfg.SessionID
		s.Profile = r.cfg.Profile.Name
		s.Format = nil
		s.LastError = scream.ErrorNone
		s.LastErrorMessage = ""
	})
	r.metrics.setRunning(true)

	var (
		conn   GroupConn
		locked bool
	)
	defer func() {
		r.teardown(conn)
		if locked {
			r.cfg.WakeLock.Release()
		}
		r.finish(err)
	}()

	if wl := r.cfg.WakeLock; wl != nil {
		if werr := wl.Acquire(); werr != nil {
			r.log.Warn("wake lock unavailable", "err", werr)
		} else {
			locked = true
		}
	}

	if r.stopping.Load() {
		return nil
	}

	c, jerr := r.cfg.Join(r.cfg.Profile, r.cfg.Interface)
	if jerr != nil {
		return fmt.Errorf("%w: join %s: %v", scream.ErrTransport, r.cfg.Profile.Addr(), jerr)
	}
	conn = c
	if !r.setConn(conn) {
		return nil
	}

	r.log.Info("joined multicast group", "addr", r.cfg.Profile.Addr(), "interface", r.cfg.Interface)
	r.status.Update(func(s *Status) { s.State = StateReceiving })

	return r.loop(conn)
}

// Stop requests the loop to end. Safe from any goroutine; a blocked read is
// released by closing the socket.
func (r *Receiver) Stop() {
	r.stopping.Store(true)

	r.connMu.Lock()
	conn := r.conn
	r.connMu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			r.log.Debug("close on stop", "err", err)
		}
	}
}

func (r *Receiver) setConn(conn GroupConn) bool {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.stopping.Load() {
		return false
	}
	r.conn = conn
	return true
}

func (r *Receiver) loop(conn GroupConn) error {
	buf := make([]byte, r.cfg.Profile.MaxPacketSize())

	for !r.stopping.Load() {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if r.stopping.Load() {
				return nil
			}
			return fmt.Errorf("%w: receive: %v", scream.ErrTransport, err)
		}
		r.handlePacket(buf[:n])
	}

	return nil
}

func (r *Receiver) handlePacket(packet []byte) {
	r.counters.packets.Add(1)
	r.metrics.packet()

	h, payload, err := r.cfg.Profile.Split(packet)
	if err != nil {
		r.counters.malformed.Add(1)
		r.metrics.malformedPacket()
		r.log.Debug("dropping packet", "err", err)
		return
	}

	if !r.haveHeader || h != r.header {
		r.header = h
		r.haveHeader = true
		r.reconfigure(h)
	}

	if r.sink == nil || len(payload) == 0 {
		return
	}

	// a trailing partial sample is never played
	partial := len(payload) % bytesPerSample
	payload = payload[:len(payload)-partial]

	var n int
	if len(payload) > 0 {
		n, err = r.sink.Write(payload)
	}
	r.counters.payloadBytes.Add(int64(n))
	if dropped := partial + len(payload) - n; dropped > 0 {
		r.counters.droppedBytes.Add(int64(dropped))
		r.metrics.written(n, dropped)
	} else {
		r.metrics.written(n, 0)
	}

	if err != nil {
		r.closeSink()
		r.fail(fmt.Errorf("%w: write: %v", scream.ErrDevice, err))
	}
}

// reconfigure replaces the sink for a new header. On failure the sink stays
// closed until the header changes again.
func (r *Receiver) reconfigure(h scream.Header) {
	r.closeSink()

	format, err := scream.ResolveFormat(h)
	if err != nil {
		r.fail(err)
		return
	}

	sink, err := r.cfg.Backend.Open(format, r.cfg.Profile.ByteOrder)
	if err != nil {
		if !errors.Is(err, scream.ErrDevice) {
			err = fmt.Errorf("%w: %v", scream.ErrDevice, err)
		}
		r.fail(err)
		return
	}

	r.sink = sink
	r.counters.reconfigurations.Add(1)
	r.metrics.format(&format)
	r.status.Update(func(s *Status) {
		f := format
		s.Format = &f
		s.LastError = scream.ErrorNone
		s.LastErrorMessage = ""
	})
	r.log.Info("output format changed", "format", format.String(), "header", h.String())
}

// fail publishes a non-fatal error and clears the format
func (r *Receiver) fail(err error) {
	kind := scream.KindOf(err)
	r.metrics.error(kind)
	r.metrics.format(nil)
	r.status.Update(func(s *Status) {
		s.Format = nil
		s.LastError = kind
		s.LastErrorMessage = err.Error()
	})
	r.log.Warn("playback paused", "kind", kind.String(), "err", err)
}

func (r *Receiver) closeSink() {
	if r.sink == nil {
		return
	}
	if err := r.sink.Close(); err != nil {
		r.log.Warn("closing output", "err", err)
	}
	r.sink = nil
}

func (r *Receiver) teardown(conn GroupConn) {
	r.closeSink()
	if conn == nil {
		return
	}

	r.status.Update(func(s *Status) { s.State = StateLeavingGroup })
	if err := conn.Leave(); err != nil {
		r.log.Debug("leaving group", "err", err)
	}
	if err := conn.Close(); err != nil {
		r.log.Debug("closing socket", "err", err)
	}
	r.log.Info("left multicast group", "addr", r.cfg.Profile.Addr())
}

func (r *Receiver) finish(err error) {
	if err != nil {
		r.metrics.error(scream.KindOf(err))
		r.log.Error("receive loop failed", "err", err)
	}
	r.metrics.format(nil)
	r.metrics.setRunning(false)

	r.status.Update(func(s *Status) {
		s.Running = false
		s.State = StateIdle
		s.Format = nil
		if err != nil {
			s.LastError = scream.KindOf(err)
			s.LastErrorMessage = err.Error()
		} else if !s.LastError.Fatal() {
			s.LastError = scream.ErrorNone
			s.LastErrorMessage = ""
		}
	})
}
