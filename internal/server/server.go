package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/GriffinCanCode/shmbridge/internal/api/middleware"
	"github.com/GriffinCanCode/shmbridge/internal/channel"
	"github.com/GriffinCanCode/shmbridge/internal/envelope"
	handlers "github.com/GriffinCanCode/shmbridge/internal/http"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/shmbridge/internal/providers/mailbox"
	"github.com/GriffinCanCode/shmbridge/internal/service"
	"github.com/GriffinCanCode/shmbridge/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

// shutdownTimeout bounds graceful shutdown
const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	registry   *service.Registry
	channel    *channel.Channel
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	maxConns   int
}

// NewServer opens the configured channel and builds the HTTP surface over it
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	ch, err := channel.Open(channel.Config{
		Name:             cfg.Segment.Name,
		Mode:             cfg.SegmentMode(),
		Capacity:         cfg.Segment.Capacity,
		Dir:              cfg.Segment.Dir,
		CrossProcessLock: cfg.Segment.CrossProcessLock,
	}, logger.Named("channel"))
	if err != nil {
		return nil, fmt.Errorf("open channel %s: %w", cfg.Segment.Name, err)
	}

	coord := resilience.NewCoordinator(resilience.RetrySettings{
		MaxRetries:       cfg.Retry.MaxRetries,
		RetryDelay:       cfg.Retry.RetryDelay,
		OperationTimeout: cfg.Retry.OperationTimeout,
		OnRetry: func(op string, _ int, _ error) {
			metrics.RecordRetry(op)
		},
	}, logger.Named("retry"))
	protocol := envelope.NewProtocol(ch, coord, logger.Named("envelope"))

	registry := service.NewRegistry()
	if err := registry.Register(mailbox.NewProvider(ch, protocol, metrics, logger.Named("mailbox"))); err != nil {
		return nil, fmt.Errorf("register mailbox provider: %w", err)
	}
	stats := registry.Stats()
	logger.Info("Services registered",
		zap.Any("total_services", stats["total_services"]),
		zap.Any("total_tools", stats["total_tools"]))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Named("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	h := handlers.NewHandlers(registry, ch, metrics)
	wsHandler := ws.NewHandler(ch, cfg.Server.WatchInterval, metrics, logger.Named("ws"))

	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	router.GET("/services", h.ListServices)
	router.POST("/services/discover", h.DiscoverServices)
	router.POST("/services/execute", h.ExecuteService)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	router.GET("/stream", wsHandler.HandleConnection)

	logger.Info("Channel ready",
		zap.String("segment", ch.Name()),
		zap.Stringer("mode", ch.Mode()),
		zap.Bool("cross_process_lock", cfg.Segment.CrossProcessLock))

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		registry: registry,
		channel:  ch,
		metrics:  metrics,
		logger:   logger,
		maxConns: cfg.Server.MaxConnections,
	}, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until Close is called
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close is called. At most
// MaxConnections are served at once.
func (s *Server) Serve(ln net.Listener) error {
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}

	s.logger.Info("Starting server",
		zap.Stringer("addr", ln.Addr()),
		zap.Int("max_connections", s.maxConns))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts the HTTP server down. The segment itself is left in place for
// other processes.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
