package server

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/proxyview/internal/api/http"
	"github.com/GriffinCanCode/proxyview/internal/api/middleware"
	"github.com/GriffinCanCode/proxyview/internal/api/ws"
	"github.com/GriffinCanCode/proxyview/internal/guard"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/config"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/logging"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/proxyview/internal/navigation"
	"github.com/GriffinCanCode/proxyview/internal/providers/external"
	"github.com/GriffinCanCode/proxyview/internal/providers/fetch"
	"github.com/GriffinCanCode/proxyview/internal/render"
)

// Version is reported by /health. Set at build time with -ldflags.
var Version = "dev"

const guardCheckTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *nethttp.Server
	controller *navigation.Controller
	host       *render.Host
	handlers   *http.Handlers
	hub        *ws.Handler
	tracer     *tracing.Tracer
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// Option overrides a collaborator, mainly for tests
type Option func(*options)

type options struct {
	fetcher fetch.Fetcher
	opener  external.Opener
}

// WithFetcher replaces the upstream fetch client
func WithFetcher(f fetch.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithOpener replaces the external browser launcher
func WithOpener(op external.Opener) Option {
	return func(o *options) { o.opener = op }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger.Info("Initializing proxyview server",
		zap.String("addr", cfg.Addr()),
		zap.Bool("open_external", cfg.Navigation.OpenExternal),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("proxyview", logger.Named("trace"))

	var breakers *resilience.Group
	fetcher := o.fetcher
	if fetcher == nil {
		client := fetch.New(fetch.Options{
			Timeout:      cfg.Fetch.Timeout.Std(),
			Retries:      cfg.Fetch.Retries,
			MaxRedirects: cfg.Fetch.MaxRedirects,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
			UserAgent:    cfg.Fetch.UserAgent,
			RateLimit:    cfg.Fetch.RateLimit,
		}, logger.Named("fetch"), metrics)
		breakers = client.Breakers()
		fetcher = client
	}

	opener := o.opener
	if opener == nil {
		opener = external.New(logger.Named("external"), external.WithEnabled(cfg.Navigation.OpenExternal))
	}

	registry, err := render.NewRegistry(cfg.Render.MaxDocuments, cfg.Render.MaxDocumentBytes, logger.Named("render"), metrics)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create document registry: %w", err)
	}
	host := render.NewHost(registry, cfg.Render.ReleaseDelay.Std(), logger.Named("render"), metrics)

	rules, err := navigation.NewRules(cfg.Navigation.ExternalPatterns)
	if err != nil {
		host.Close()
		tracer.Close()
		return nil, fmt.Errorf("invalid external patterns: %w", err)
	}

	controller := navigation.NewController(fetcher, opener, host, logger.Named("navigation"),
		navigation.WithRules(rules),
		navigation.WithMetrics(metrics),
		navigation.WithTracer(tracer),
	)

	handlers, err := http.NewHandlers(http.Deps{
		Navigator: controller,
		Documents: host,
		Breakers:  breakers,
		Metrics:   metrics,
		Logger:    logger.Named("http"),
		Version:   Version,
	})
	if err != nil {
		controller.Close()
		host.Close()
		tracer.Close()
		return nil, fmt.Errorf("failed to create handlers: %w", err)
	}
	hub := ws.NewHandler(controller, logger.Named("ws"), metrics)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))

	api := []gin.HandlerFunc{middleware.CORS(middleware.DefaultCORSConfig())}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		api = append(api, middleware.RateLimit(limits))
	}

	// Register routes
	handlers.Register(router, api...)
	router.GET("/ws", hub.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		httpServer: &nethttp.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		controller: controller,
		host:       host,
		handlers:   handlers,
		hub:        hub,
		tracer:     tracer,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() nethttp.Handler {
	return s.router
}

// Controller returns the navigation controller driven by the server
func (s *Server) Controller() *navigation.Controller {
	return s.controller
}

// CheckGuard runs the guard self-check and reports the outcome on /health.
// A failing shim degrades the service but does not stop it.
func (s *Server) CheckGuard(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, guardCheckTimeout)
	defer cancel()

	err := guard.Verify(ctx)
	s.handlers.SetGuardStatus(err)
	if err != nil {
		s.logger.Error("Guard self-check failed", zap.Error(err))
		return err
	}
	s.logger.Info("Guard self-check passed")
	return nil
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	_ = s.CheckGuard(ctx)

	if start := s.config.Navigation.StartURL; start != "" {
		go func() {
			if err := s.controller.Navigate(context.WithoutCancel(ctx), start); err != nil {
				s.logger.Warn("Start page failed to load", zap.String("url", start), zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown
	s.hub.Close()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Close releases every resource. It is safe to call more than once.
func (s *Server) Close() {
	s.hub.Close()
	s.controller.Close()
	s.host.Close()
	s.tracer.Close()
	s.logger.Sync()
}
