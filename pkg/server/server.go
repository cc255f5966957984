package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"dispatch/pkg/audit"
	"dispatch/pkg/config"
	"dispatch/pkg/interceptors"
	"dispatch/pkg/logger"
	"dispatch/pkg/metrics"
	"dispatch/pkg/passhash"
	"dispatch/pkg/ratelimit"
	"dispatch/pkg/swagger"
	"dispatch/pkg/telemetry"
)

// servingStatus mirrors the gRPC health states this server used to expose,
// kept so operators querying /healthz see the same vocabulary.
type servingStatus int32

const (
	statusNotServing servingStatus = iota
	statusServing
)

// Server wraps a net/http.Server with the standard middleware chain,
// health reporting, and graceful shutdown.
type Server struct {
	httpServer  *http.Server
	mux         *http.ServeMux
	health      atomic.Int32
	serviceName string
	config      *config.Config
	telemetry   *telemetry.Provider
	rateLimiter ratelimit.Limiter
	auditLogger audit.Logger
}

// New создаёт новый HTTP сервер
func New(cfg *config.Config) *Server {
	return NewWithOptions(cfg, nil)
}

// ServerOptions дополнительные опции сервера
type ServerOptions struct {
	RateLimiter   ratelimit.Limiter
	AuditLogger   audit.Logger
	AuditExclude  []string
	KeyExtractor  ratelimit.KeyExtractor
	SwaggerSpec   []byte
	EnableSwagger bool
	JWTManager    *passhash.JWTManager
}

// NewWithOptions создаёт сервер с дополнительными опциями
func NewWithOptions(cfg *config.Config, opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}

	rateLimiter := opts.RateLimiter
	if rateLimiter == nil && cfg.RateLimit.Enabled {
		var err error
		rateLimiter, err = ratelimit.New(&ratelimit.Config{
			Requests:        cfg.RateLimit.Requests,
			Window:          cfg.RateLimit.Window,
			Strategy:        cfg.RateLimit.Strategy,
			Backend:         cfg.RateLimit.Backend,
			BurstSize:       cfg.RateLimit.BurstSize,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
			RedisAddr:       cfg.RateLimit.RedisAddr,
		})
		if err != nil {
			logger.Log.Warn("Failed to create rate limiter, continuing without it", "error", err)
			rateLimiter = nil
		} else {
			logger.Log.Info("Rate limiter initialized",
				"requests", cfg.RateLimit.Requests,
				"window", cfg.RateLimit.Window,
				"strategy", cfg.RateLimit.Strategy,
			)
		}
	}

	auditLogger := opts.AuditLogger
	if auditLogger == nil && cfg.Audit.Enabled {
		var err error
		auditLogger, err = audit.New(&audit.Config{
			Enabled:        cfg.Audit.Enabled,
			Backend:        cfg.Audit.Backend,
			FilePath:       cfg.Audit.FilePath,
			BufferSize:     cfg.Audit.BufferSize,
			FlushPeriod:    cfg.Audit.FlushPeriod,
			ExcludeMethods: cfg.Audit.ExcludeMethods,
			IncludeRequest: cfg.Audit.IncludeRequest,
		})
		if err != nil {
			logger.Log.Warn("Failed to create audit logger, continuing without it", "error", err)
			auditLogger = nil
		} else {
			audit.SetGlobal(auditLogger)
			logger.Log.Info("Audit logger initialized", "backend", cfg.Audit.Backend)
		}
	}

	auditExclude := make(map[string]bool)
	for _, route := range opts.AuditExclude {
		auditExclude[route] = true
	}
	for _, route := range cfg.Audit.ExcludeMethods {
		auditExclude[route] = true
	}
	auditExclude["GET /healthz"] = true

	mws := interceptors.Build(&interceptors.ServerConfig{
		ServiceName:   cfg.App.Name,
		EnableTracing: cfg.Tracing.Enabled,
		EnableAudit:   cfg.Audit.Enabled && auditLogger != nil,
		RateLimiter:   rateLimiter,
		AuditLogger:   auditLogger,
		AuditExclude:  auditExclude,
		KeyExtractor:  opts.KeyExtractor,
		JWTManager:    opts.JWTManager,
	})

	s := &Server{
		mux:         http.NewServeMux(),
		serviceName: cfg.App.Name,
		config:      cfg,
		rateLimiter: rateLimiter,
		auditLogger: auditLogger,
	}
	s.health.Store(int32(statusNotServing))

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	if opts.EnableSwagger && len(opts.SwaggerSpec) > 0 {
		swaggerCfg := swagger.DefaultConfig()
		swaggerCfg.Title = cfg.App.Name + " API"
		swagger.RegisterRoutes(s.mux, swaggerCfg, opts.SwaggerSpec)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      interceptors.Chain(s.mux, mws...),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if servingStatus(s.health.Load()) == statusServing {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"serving"}`)) //nolint:errcheck // health endpoint
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"status":"not_serving"}`)) //nolint:errcheck // health endpoint
}

// Mux returns the underlying ServeMux so callers can register API routes
// before Run is called.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// GetAuditLogger возвращает audit logger
func (s *Server) GetAuditLogger() audit.Logger {
	return s.auditLogger
}

// Run запускает сервер и блокируется до получения сигнала завершения.
func (s *Server) Run() error {
	ctx := context.Background()

	if s.config.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     s.config.Tracing.Enabled,
			Endpoint:    s.config.Tracing.Endpoint,
			ServiceName: s.config.Tracing.ServiceName,
			Version:     s.config.App.Version,
			Environment: s.config.App.Environment,
			SampleRate:  s.config.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("Failed to init telemetry", "error", err)
		} else {
			s.telemetry = tp
			logger.Log.Info("Telemetry initialized",
				"endpoint", s.config.Tracing.Endpoint,
				"sample_rate", s.config.Tracing.SampleRate,
			)
		}
	}

	if s.config.Metrics.Enabled {
		go func() {
			logger.Log.Info("Starting metrics server",
				"port", s.config.Metrics.Port,
				"path", s.config.Metrics.Path,
			)
			if err := metrics.StartMetricsServer(s.config.Metrics.Port); err != nil {
				logger.Log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.health.Store(int32(statusServing))

	errCh := make(chan error, 1)

	go func() {
		logger.Log.Info("Starting HTTP server",
			"service", s.serviceName,
			"addr", s.httpServer.Addr,
			"environment", s.config.App.Environment,
			"version", s.config.App.Version,
		)
		if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if m := metrics.Get(); m != nil {
		m.SetServiceInfo(s.config.App.Version, s.config.App.Environment)
	}

	if s.auditLogger != nil {
		entry := audit.NewEntry().
			Service(s.serviceName).
			Method("server.Start").
			Action(audit.ActionCreate).
			Outcome(audit.OutcomeSuccess).
			Meta("addr", s.httpServer.Addr).
			Meta("version", s.config.App.Version).
			Meta("environment", s.config.App.Environment).
			Build()
		if err := s.auditLogger.Log(ctx, entry); err != nil {
			logger.Log.Warn("Failed to log audit entry", "error", err)
		}
	}

	return s.waitForShutdown(errCh)
}

func (s *Server) waitForShutdown(errCh chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Log.Info("Received shutdown signal", "signal", sig)
	}

	if s.auditLogger != nil {
		entry := audit.NewEntry().
			Service(s.serviceName).
			Method("server.Shutdown").
			Action(audit.ActionUpdate).
			Outcome(audit.OutcomeSuccess).
			Meta("reason", "signal").
			Build()
		if err := s.auditLogger.Log(context.Background(), entry); err != nil {
			logger.Log.Warn("Failed to log audit entry", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.health.Store(int32(statusNotServing))

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			logger.Log.Warn("Failed to shutdown telemetry", "error", err)
		}
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Close(); err != nil {
			logger.Log.Warn("Failed to close rate limiter", "error", err)
		}
	}

	if s.auditLogger != nil {
		if err := s.auditLogger.Close(); err != nil {
			logger.Log.Warn("Failed to close audit logger", "error", err)
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Log.Warn("Forcing server stop", "error", err)
		return s.httpServer.Close()
	}

	logger.Log.Info("Server stopped gracefully")
	return nil
}

// Stop останавливает сервер немедленно
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// GracefulStop останавливает сервер gracefully
func (s *Server) GracefulStop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
