// ABOUTME: Pipeline controller with idempotent start and fire-and-forget stop
// ABOUTME: Each start runs a fresh receiver under a new session ID
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/screamrx/screamrx/pkg/audio/output"
	"github.com/screamrx/screamrx/pkg/receiver"
	"github.com/screamrx/screamrx/pkg/scream"
)

// ErrClosed is returned by Start after Close
var ErrClosed = errors.New("pipeline: controller closed")

// Config configures a Controller
type Config struct {
	Profile   scream.Profile
	Interface string
	Backend   output.Backend

	// Join defaults to receiver.JoinMulticast
	Join     receiver.JoinFunc
	WakeLock receiver.WakeLock
	Metrics  *receiver.Metrics
	Realtime bool

	// OnExit is called after every run has fully torn down, with nil for a
	// requested stop and the transport error otherwise
	OnExit func(err error)

	Logger *slog.Logger
}

// Controller starts and stops the receive loop
type Controller struct {
	cfg      Config
	log      *slog.Logger
	status   *receiver.StatusStore
	counters *receiver.Counters

	mu       sync.Mutex
	rx       *receiver.Receiver
	done     chan struct{}
	stopping bool
	closed   bool
}

// New creates an idle controller
func New(cfg Config) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, errors.New("pipeline: output backend is required")
	}
	if cfg.Profile.HeaderSize == 0 {
		cfg.Profile = scream.Current
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	status := receiver.NewStatusStore()
	status.Update(func(s *receiver.Status) { s.Profile = cfg.Profile.Name })

	return &Controller{
		cfg:      cfg,
		log:      cfg.Logger.With("component", "pipeline"),
		status:   status,
		counters: &receiver.Counters{},
	}, nil
}

// Start begins receiving. It is a no-op while running; if a stop is in
// progress it waits for teardown and starts again.
func (c *Controller) Start() error {
	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if c.done == nil {
			break
		}
		if !c.stopping {
			c.mu.Unlock()
			return nil
		}
		done := c.done
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	session := uuid.New().String()
	rx, err := receiver.New(receiver.Config{
		Profile:   c.cfg.Profile,
		Interface: c.cfg.Interface,
		Backend:   c.cfg.Backend,
		Join:      c.cfg.Join,
		WakeLock:  c.cfg.WakeLock,
		Status:    c.status,
		Counters:  c.counters,
		Metrics:   c.cfg.Metrics,
		SessionID: session,
		Realtime:  c.cfg.Realtime,
		Logger:    c.cfg.Logger.With("session", session),
	})
	if err != nil {
		return err
	}

	c.status.Update(func(s *receiver.Status) {
		s.Running = true
		s.State = receiver.StateJoiningGroup
		s.SessionID = session
		s.Format = nil
		s.LastError = scream.ErrorNone
		s.LastErrorMessage = ""
	})

	done := make(chan struct{})
	c.rx = rx
	c.done = done
	c.stopping = false

	c.log.Info("starting receiver", "session", session, "addr", c.cfg.Profile.Addr())
	go c.run(rx, done)

	return nil
}

func (c *Controller) run(rx *receiver.Receiver, done chan struct{}) {
	err := rx.Run(context.Background())

	c.mu.Lock()
	if c.rx == rx {
		c.rx = nil
		c.done = nil
		c.stopping = false
	}
	c.mu.Unlock()
	close(done)

	if err != nil {
		c.log.Error("receiver exited", "err", err)
	} else {
		c.log.Info("receiver stopped")
	}
	if c.cfg.OnExit != nil {
		c.cfg.OnExit(err)
	}
}

// Stop requests the running loop to end and returns without waiting
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rx == nil || c.stopping {
		return
	}
	c.stopping = true
	c.rx.Stop()
}

// Wait blocks until the current run, if any, has torn down
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether a run is active or still tearing down
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rx != nil
}

// Status returns the current snapshot
func (c *Controller) Status() receiver.Status {
	return c.status.Snapshot()
}

// Stats returns counters accumulated over all runs
func (c *Controller) Stats() receiver.Stats {
	return c.counters.Snapshot()
}

// Profile returns the configured protocol profile
func (c *Controller) Profile() scream.Profile {
	return c.cfg.Profile
}

// Close stops, waits for teardown and releases the output backend
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	c.Wait()

	return c.cfg.Backend.Close()
}
