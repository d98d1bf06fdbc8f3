// Package api serves the Warden control API over HTTP and provides a client
// for it.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/internal/failover"
)

const shutdownTimeout = 10 * time.Second

// Backend is the orchestrator surface the API drives.
// *orchestrator.Orchestrator satisfies it.
type Backend interface {
	RegisterService(name string, endpoints []v1.ServiceEndpoint) error
	AddRule(rule v1.FailoverRule) error
	ManualFailover(ctx context.Context, service string, action v1.Action, params map[string]string) (v1.FailoverRecord, error)
	Status() v1.StatusReport
	Service(name string) (v1.ServiceStatus, error)
	Services() []v1.ServiceSpec
	Rules(name string) ([]v1.FailoverRule, error)
	Failovers(name string) ([]v1.FailoverRecord, error)
	History(name string, window time.Duration) ([]v1.HealthSample, error)
	EnableMaintenance(name string) (bool, error)
	DisableMaintenance(name string) (bool, error)
}

// Option customises a Server.
type Option func(*Server)

// WithErrorRates enables PUT /services/:name/error-rate backed by src.
func WithErrorRates(src *failover.StaticErrorRates) Option {
	return func(s *Server) { s.rates = src }
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithTimeouts sets the HTTP server read and write timeouts.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.e.Server.ReadTimeout = read
		s.e.Server.WriteTimeout = write
	}
}

// WithFailoverLimit allows burst manual failovers per service, refilled once
// every interval. A zero interval disables the limit.
func WithFailoverLimit(every time.Duration, burst int) Option {
	return func(s *Server) {
		s.limitEvery = every
		s.limitBurst = max(burst, 1)
	}
}

// Server is the echo-based control API.
type Server struct {
	e       *echo.Echo
	addr    string
	backend Backend
	rates   *failover.StaticErrorRates
	metrics http.Handler
	log     *logger.Logger

	limitEvery time.Duration
	limitBurst int
	limitMu    sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewServer builds the API and registers every route.
func NewServer(addr string, backend Backend, log *logger.Logger, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		e:        e,
		addr:     addr,
		backend:  backend,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				args = append(args, "err", v.Error)
			}
			s.log.Debug("api request", args...)
			return nil
		},
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.e.GET("/healthz", s.healthz)
	s.e.GET("/status", s.status)
	if s.metrics != nil {
		s.e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	s.e.POST("/services", s.registerService)
	s.e.GET("/services", s.listServices)

	svc := s.e.Group("/services/:name")
	svc.GET("", s.getService)
	svc.POST("/rules", s.addRule)
	svc.GET("/rules", s.listRules)
	svc.POST("/failover", s.failover)
	svc.GET("/failovers", s.listFailovers)
	svc.GET("/history", s.history)
	svc.POST("/maintenance", s.enableMaintenance)
	svc.DELETE("/maintenance", s.disableMaintenance)
	svc.PUT("/error-rate", s.setErrorRate)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.e.Start(s.addr) }()
	s.log.Info("api listening", "addr", s.addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("api stopped")
	return nil
}

// allowFailover applies the per-service manual failover rate limit.
func (s *Server) allowFailover(service string) bool {
	if s.limitEvery <= 0 {
		return true
	}
	s.limitMu.Lock()
	lim, ok := s.limiters[service]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.limitEvery), s.limitBurst)
		s.limiters[service] = lim
	}
	s.limitMu.Unlock()
	return lim.Allow()
}
