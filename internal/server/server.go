package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/airea/airea/internal/config"
	"github.com/airea/airea/internal/handler"
	"github.com/airea/airea/internal/ratelimit"
	"github.com/airea/airea/internal/server/middleware"
	"github.com/airea/airea/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// PublicRoutes skip authentication; see middleware.NewAllowList.
	PublicRoutes    []string
	DeviceIDPattern string

	// KeyIssuancePerHour caps API key generation per device; 0 disables.
	KeyIssuancePerHour int
	// BucketIdleTTL is how long an untouched rate limit bucket survives;
	// 0 keeps buckets for the life of the process.
	BucketIdleTTL time.Duration

	Version string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        []string{"*"},
		PublicRoutes:       config.DefaultPublicRoutes,
		DeviceIDPattern:    `^ESP32_[A-Z0-9_]+$`,
		KeyIssuancePerHour: 10,
		BucketIdleTTL:      10 * time.Minute,
		Version:            "dev",
	}
}

// sweeper is implemented by limiters that can reclaim idle buckets.
type sweeper interface {
	RunSweeper(ctx context.Context, period, idle time.Duration, onSweep func(removed int))
}

// Server is the top-level HTTP server. It owns the Chi router and wires the
// admission pipeline in front of every handler.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *config.Store
	authSvc    *service.AuthService
	limiter    ratelimit.Limiter
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, store *config.Store, authSvc *service.AuthService, limiter ratelimit.Limiter, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		store:   store,
		authSvc: authSvc,
		limiter: limiter,
		logger:  logger,
	}
	if err := s.setupRouter(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) setupRouter() error {
	pattern, err := handler.NewDeviceIDPattern(s.cfg.DeviceIDPattern)
	if err != nil {
		return err
	}

	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Requested-With"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(middleware.Admission(s.limiter, s.authSvc, middleware.NewAllowList(s.cfg.PublicRoutes)))
	r.Use(chimw.Compress(5))

	// --- Probes ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.Version).ServeSpec)

	authHandler := handler.NewAuthHandler(s.authSvc, pattern, s.logger)
	deviceHandler := handler.NewDeviceHandler(s.store, pattern, s.logger)
	coughHandler := handler.NewCoughHandler(s.store, s.logger)

	// --- Credential lifecycle (public, rate limited) ---
	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.IssuanceLimit(s.cfg.KeyIssuancePerHour)).
			Post("/generate-key/{deviceId}", authHandler.GenerateKey)
		r.Post("/login", authHandler.Login)
		r.Delete("/revoke/{deviceId}", authHandler.Revoke)
		r.Get("/health", authHandler.Health)
	})

	// --- Device registry ---
	r.Route("/api/device", func(r chi.Router) {
		r.Post("/register", deviceHandler.Register)
		r.Get("/active", deviceHandler.ListActive)
		r.Get("/all", deviceHandler.ListAll)
		r.Get("/{deviceId}", deviceHandler.Get)
		r.Put("/{deviceId}", deviceHandler.Update)
		r.Delete("/{deviceId}", deviceHandler.Deactivate)
	})

	// --- Cough events ---
	r.Route("/api/cough", func(r chi.Router) {
		r.Get("/health", coughHandler.Health)
		r.Post("/event", coughHandler.CreateEvent)
		r.Get("/device/{deviceId}", coughHandler.ListByDevice)
	})

	s.router = r
	return nil
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the device store
// answers a ping, 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, httpStatus := "ok", http.StatusOK
	checks := map[string]string{"database": "ok"}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
		checks["database"] = "unavailable"
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. Idle rate limit buckets are swept while it runs.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if sw, ok := s.limiter.(sweeper); ok && s.cfg.BucketIdleTTL > 0 {
		go sw.RunSweeper(sweepCtx, s.cfg.BucketIdleTTL/2, s.cfg.BucketIdleTTL, func(removed int) {
			if removed > 0 {
				s.logger.Debug("rate limit buckets reclaimed", "removed", removed)
			}
		})
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
