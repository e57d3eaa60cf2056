// ABOUTME: HTTP status API for the receiver
// ABOUTME: JSON snapshot, websocket snapshot feed, Prometheus metrics and start/stop
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/screamrx/screamrx/pkg/receiver"
)

const (
	writeDeadline   = 10 * time.Second
	pingInterval    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Controller is the part of the pipeline the API drives
type Controller interface {
	Start() error
	Stop()
	Status() receiver.Status
	Stats() receiver.Stats
}

// Snapshot is the body of GET /status and each websocket frame
type Snapshot struct {
	Status  receiver.Status `json:"status"`
	Stats   receiver.Stats  `json:"stats"`
	Version string          `json:"version,omitempty"`
}

// Config holds API configuration
type Config struct {
	Addr         string
	PollInterval time.Duration
	Version      string

	// Gatherer serves /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server serves the status API
type Server struct {
	cfg      Config
	ctrl     Controller
	log      *slog.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

// New creates a server; call Run to listen
func New(ctrl Controller, cfg Config) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:  cfg,
		ctrl: ctrl,
		log:  cfg.Logger.With("component", "statusapi"),
		upgrader: websocket.Upgrader{
			// read-only feed on a trusted LAN
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(config))

	router.GET("/status", s.handleStatus)
	router.GET("/ws", s.handleFeed)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	router.POST("/start", s.handleStart)
	router.POST("/stop", s.handleStop)

	return router
}

// Handler exposes the router for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("status API listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) snapshot() Snapshot {
	return Snapshot{
		Status:  s.ctrl.Status(),
		Stats:   s.ctrl.Stats(),
		Version: s.cfg.Version,
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot())
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.ctrl.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.snapshot())
}

func (s *Server) handleStop(c *gin.Context) {
	s.ctrl.Stop()
	c.JSON(http.StatusAccepted, s.snapshot())
}

// handleFeed pushes a snapshot every poll interval until the client goes away
func (s *Server) handleFeed(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	s.log.Debug("status feed connected", "remote", c.Request.RemoteAddr)

	// reader detects the close; the feed is one-way
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Debug("status feed read", "err", err)
				}
				return
			}
		}
	}()

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	send := func() bool {
		data, err := json.Marshal(s.snapshot())
		if err != nil {
			s.log.Warn("encoding snapshot", "err", err)
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}

	if !send() {
		return
	}
	for {
		select {
		case <-poll.C:
			if !send() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
