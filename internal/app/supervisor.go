// ABOUTME: Restart policy for the receive pipeline
// ABOUTME: Schedules a delayed restart after a transport failure
package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/screamrx/screamrx/pkg/scream"
)

type supervisor struct {
	enabled bool
	delay   time.Duration
	start   func() error
	log     *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	closed   bool
	restarts int
}

// onExit is the pipeline exit hook
func (s *supervisor) onExit(err error) {
	if err == nil || !scream.KindOf(err).Fatal() || !s.enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	s.log.Warn("receiver failed, scheduling restart", "delay", s.delay, "err", err)
	s.timer = time.AfterFunc(s.delay, s.restart)
}

func (s *supervisor) restart() {
	s.mu.Lock()
	if s.closed || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.restarts++
	s.mu.Unlock()

	if err := s.start(); err != nil {
		s.log.Error("restart failed", "err", err)
	}
}

// cancel drops a pending restart
func (s *supervisor) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *supervisor) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *supervisor) restartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *supervisor) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}
