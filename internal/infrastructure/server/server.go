package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/logging"
	"github.com/GriffinCanCode/rngpool/internal/shared/id"
	"github.com/GriffinCanCode/rngpool/internal/supervisor"
)

const shutdownTimeout = 5 * time.Second

// Source is the view of the running pool the server exposes.
type Source interface {
	RunID() id.RunID
	State() supervisor.State
	Workers() []supervisor.WorkerStatus
}

// Config holds status server options.
type Config struct {
	Addr        string
	Development bool
	RateLimit   RateLimitConfig
}

// Server is the optional HTTP status endpoint of a running pool.
type Server struct {
	cfg    Config
	router *gin.Engine
	source Source
	hub    *Hub
	logger *logging.Logger
}

// New creates a status server. gatherer backs /metrics; nil disables it. A nil
// hub gets a fresh one.
func New(cfg Config, source Source, gatherer prometheus.Gatherer, hub *Hub, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("status")

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = DefaultRateLimitConfig()
	}

	if hub == nil {
		hub = NewHub(logger, defaultClientBuffer)
	}

	s := &Server{
		cfg:    cfg,
		router: gin.New(),
		source: source,
		hub:    hub,
		logger: logger,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(AccessLog(logger))
	s.router.Use(RateLimit(cfg.RateLimit))

	s.router.GET("/", s.root)
	s.router.GET("/health", s.health)
	s.router.GET("/workers", s.workers)
	s.router.GET("/stream", s.hub.ServeWS)
	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Hub returns the sample stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting status server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down status server...")
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shut down status server", zap.Error(err))
		return fmt.Errorf("shutdown status server: %w", err)
	}
	return nil
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "rngpool",
		"run_id":  s.source.RunID().String(),
		"state":   s.source.State().String(),
	})
}

func (s *Server) health(c *gin.Context) {
	state := s.source.State()
	status := "healthy"
	code := http.StatusOK
	if state == supervisor.StateStopping || state == supervisor.StateDone {
		status = "stopping"
		code = http.StatusServiceUnavailable
	}

	alive := 0
	for _, w := range s.source.Workers() {
		if w.Alive {
			alive++
		}
	}

	c.JSON(code, gin.H{
		"status":         status,
		"state":          state.String(),
		"workers_alive":  alive,
		"stream_clients": s.hub.Clients(),
	})
}

func (s *Server) workers(c *gin.Context) {
	workers := s.source.Workers()
	c.JSON(http.StatusOK, gin.H{
		"run_id":  s.source.RunID().String(),
		"count":   len(workers),
		"workers": workers,
	})
}
