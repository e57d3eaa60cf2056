// ABOUTME: Main receiver application orchestration
// ABOUTME: Coordinates pipeline, settings, supervisor, status API, discovery and UI
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/screamrx/screamrx/internal/config"
	"github.com/screamrx/screamrx/internal/discovery"
	"github.com/screamrx/screamrx/internal/settings"
	"github.com/screamrx/screamrx/internal/statusapi"
	"github.com/screamrx/screamrx/internal/ui"
	"github.com/screamrx/screamrx/internal/version"
	"github.com/screamrx/screamrx/pkg/audio/output"
	"github.com/screamrx/screamrx/pkg/pipeline"
	"github.com/screamrx/screamrx/pkg/receiver"
	"golang.org/x/sync/errgroup"
)

// Option overrides a collaborator, mainly for tests
type Option func(*App)

// WithBackend replaces the configured output backend
func WithBackend(b output.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithJoin replaces the multicast join
func WithJoin(join receiver.JoinFunc) Option {
	return func(a *App) { a.join = join }
}

var _ statusapi.Controller = (*App)(nil)

// App represents the receiver application
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry

	backend  output.Backend
	join     receiver.JoinFunc
	ctrl     *pipeline.Controller
	sup      *supervisor
	settings *settings.Store
	api      *statusapi.Server

	controls *ui.Controls
	tuiProg  *tea.Program
}

// New wires the application from configuration
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		cfg:      cfg,
		log:      logger.With("component", "app"),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}

	profile, err := cfg.Receiver.ResolveProfile()
	if err != nil {
		return nil, err
	}

	if a.backend == nil {
		a.backend, err = output.New(cfg.Output.Backend, output.Options{
			BufferMs: cfg.Output.BufferMs,
			WAVDir:   cfg.Output.WAVDir,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}

	a.settings, err = settings.Open(cfg.Settings.File)
	if err != nil {
		return nil, err
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := version.Register(a.registry); err != nil {
		return nil, fmt.Errorf("register build info: %w", err)
	}
	metrics := receiver.NewMetrics(a.registry)

	a.sup = &supervisor{
		enabled: cfg.Supervisor.Restart,
		delay:   cfg.Supervisor.RestartDelay,
		start:   a.startPipeline,
		log:     logger.With("component", "supervisor"),
	}

	a.ctrl, err = pipeline.New(pipeline.Config{
		Profile:   profile,
		Interface: cfg.Receiver.Interface,
		Backend:   a.backend,
		Join:      a.join,
		Metrics:   metrics,
		Realtime:  cfg.Receiver.Realtime,
		OnExit:    a.sup.onExit,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Server.Enabled {
		a.api = statusapi.New(a, statusapi.Config{
			Addr:         cfg.Server.ListenAddr,
			PollInterval: cfg.Server.PollInterval,
			Version:      version.Version,
			Gatherer:     a.registry,
			Logger:       logger,
		})
	}

	if !cfg.NoTUI {
		a.controls = ui.NewControls()
		a.tuiProg, err = ui.Run(a.controls)
		if err != nil {
			return nil, fmt.Errorf("failed to start TUI: %w", err)
		}
	}

	return a, nil
}

// Start is the user-facing start: it also drops any pending restart
func (a *App) Start() error {
	a.sup.cancel()
	return a.startPipeline()
}

// Stop is the user-facing stop
func (a *App) Stop() {
	a.sup.cancel()
	a.ctrl.Stop()
}

// Status returns the pipeline snapshot
func (a *App) Status() receiver.Status {
	return a.ctrl.Status()
}

// Stats returns the pipeline counters
func (a *App) Stats() receiver.Stats {
	return a.ctrl.Stats()
}

func (a *App) startPipeline() error {
	return a.ctrl.Start()
}

// shouldResume reports whether to start at launch
func (a *App) shouldResume() bool {
	return a.cfg.Receiver.Autostart || a.settings.Get().ServiceRunning
}

// Run blocks until ctx is done or the UI quits
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.shouldResume() {
		a.log.Info("resuming receiver", "autostart", a.cfg.Receiver.Autostart)
		if err := a.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	g.Go(func() error {
		a.persistLoop(gctx)
		return nil
	})

	if a.api != nil {
		g.Go(func() error {
			return a.api.Run(gctx)
		})

		if a.cfg.Discovery.Enabled {
			if disc, err := a.advertise(); err != nil {
				a.log.Warn("mDNS advertisement failed", "err", err)
			} else {
				defer disc.Stop()
			}
		}
	}

	if a.controls != nil {
		g.Go(func() error {
			a.controlLoop(gctx, cancel)
			return nil
		})
	}

	if a.tuiProg != nil {
		g.Go(func() error {
			ui.Poll(gctx, a.tuiProg, a.cfg.Server.PollInterval, a.statusMsg)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			a.tuiProg.Quit()
			return nil
		})
		g.Go(func() error {
			_, err := a.tuiProg.Run()
			cancel()
			return err
		})
	}

	err := g.Wait()

	// the record keeps whether the user had the service running
	final := a.ctrl.Status()
	a.sup.close()
	if cerr := a.ctrl.Close(); cerr != nil {
		a.log.Warn("closing output backend", "err", cerr)
	}
	if serr := a.settings.Update(final); serr != nil {
		a.log.Warn("saving settings", "err", serr)
	}

	return err
}

// persistLoop writes the settings record from status polls
func (a *App) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Server.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.settings.Update(a.ctrl.Status()); err != nil {
				a.log.Warn("saving settings", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// controlLoop applies TUI commands
func (a *App) controlLoop(ctx context.Context, quit context.CancelFunc) {
	for {
		select {
		case cmd := <-a.controls.Commands:
			switch cmd {
			case ui.CommandStart:
				if err := a.Start(); err != nil {
					a.log.Error("start failed", "err", err)
				}
			case ui.CommandStop:
				a.Stop()
			}
		case <-a.controls.Quit:
			quit()
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) statusMsg() ui.StatusMsg {
	return ui.StatusMsg{
		Status:    a.ctrl.Status(),
		Stats:     a.ctrl.Stats(),
		Listening: a.listening(),
	}
}

func (a *App) listening() string {
	addr := a.ctrl.Profile().Addr()
	if a.cfg.Receiver.Interface != "" {
		addr += " on " + a.cfg.Receiver.Interface
	}
	return addr
}

func (a *App) advertise() (*discovery.Manager, error) {
	_, portStr, err := net.SplitHostPort(a.cfg.Server.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", a.cfg.Server.ListenAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("listen port %q: %w", portStr, err)
	}

	profile := a.ctrl.Profile()
	mgr := discovery.NewManager(discovery.Config{
		Instance: a.instanceName(),
		Port:     port,
		Info: []string{
			"path=/status",
			"profile=" + profile.Name,
			"group=" + profile.Addr(),
			"version=" + version.Version,
		},
		Logger: a.log,
	})
	if err := mgr.Advertise(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (a *App) instanceName() string {
	if a.cfg.Discovery.Instance != "" {
		return a.cfg.Discovery.Instance
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return version.Product
	}
	return host
}
