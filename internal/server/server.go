package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/config"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/shared/id"
)

// Options configures a Server.
type Options struct {
	Config      config.ServerConfig
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
	IDs         *id.Generator
	Development bool
}

// Server serves one kernel over HTTP.
type Server struct {
	router  *gin.Engine
	kernel  *kernel.Kernel
	handles *handleTable
	metrics *monitoring.Metrics
	log     *zap.Logger
	cfg     config.ServerConfig

	http     *http.Server
	shutdown atomic.Bool
}

// New builds the router for k. The server does not own k; callers close
// it after Shutdown.
func New(k *kernel.Kernel, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	gen := opts.IDs
	if gen == nil {
		gen = id.Default()
	}

	if err := metrics.Register(monitoring.NewKernelCollector(k)); err != nil {
		log.Warn("kernel collector not registered", zap.Error(err))
	}

	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	s := &Server{
		router:  router,
		kernel:  k,
		handles: newHandleTable(gen),
		metrics: metrics,
		log:     log,
		cfg:     opts.Config,
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(gen))
	router.Use(middleware.Logger(log))
	if opts.Config.MetricsEnabled {
		router.Use(monitoring.Middleware(metrics))
	}
	if opts.Config.GlobalRequestsPerSecond > 0 {
		router.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: opts.Config.GlobalRequestsPerSecond,
			Burst:             opts.Config.GlobalBurst,
		}))
	}
	if opts.Config.RateLimitEnabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = opts.Config.RequestsPerSecond
		rl.Burst = opts.Config.Burst
		router.Use(middleware.RateLimit(rl))
	}

	s.routes()
	s.http = &http.Server{Handler: router}
	return s
}

func (s *Server) routes() {
	r := s.router

	r.GET("/health", s.health)
	r.GET("/stats", s.stats)
	if s.cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.GET("/devices", s.listDevices)
	r.POST("/devices/:minor/open", s.openDevice)

	r.GET("/handles", s.listHandles)
	r.POST("/handles/:id/read", s.read)
	r.POST("/handles/:id/write", s.write)
	r.POST("/handles/:id/ioctl", s.ioctl)
	r.PUT("/handles/:id/nonblock", s.setNonblock)
	r.DELETE("/handles/:id", s.closeHandle)

	r.POST("/msgbox", s.submit)
	r.GET("/msgbox", s.retrieve)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen opens the Unix socket at path, removing a stale socket file left
// by a previous run.
func Listen(path string) (net.Listener, error) {
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("%s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o660); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to chmod socket: %w", err)
	}
	return ln, nil
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("devipcd listening", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured socket and serves.
func (s *Server) ListenAndServe() error {
	ln, err := Listen(s.cfg.Socket)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown closes every client handle, releasing blocked callers with
// ESHUTDOWN, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	closed := s.handles.closeAll(errno.ErrShutdown)
	s.metrics.SetHandlesOpen(0)
	s.log.Info("devipcd shutting down", zap.Int("handles_closed", closed))
	return s.http.Shutdown(ctx)
}
