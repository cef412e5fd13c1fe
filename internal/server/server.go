// Package server provides the HTTP server and routing for PortfolioPilot.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/portfoliopilot/internal/config"
	"github.com/aristath/portfoliopilot/internal/database"
	"github.com/aristath/portfoliopilot/internal/modules/allocation"
	"github.com/aristath/portfoliopilot/internal/modules/backtest"
	backtesthandlers "github.com/aristath/portfoliopilot/internal/modules/backtest/handlers"
	"github.com/aristath/portfoliopilot/internal/modules/historical"
	historicalhandlers "github.com/aristath/portfoliopilot/internal/modules/historical/handlers"
	"github.com/aristath/portfoliopilot/internal/modules/optimization"
	optimizationhandlers "github.com/aristath/portfoliopilot/internal/modules/optimization/handlers"
)

// Config holds the server's collaborators
type Config struct {
	Log       zerolog.Logger
	HistoryDB *database.DB
	Store     *historical.Store
	Solvers   *optimization.Registry
	Config    *config.Config
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	historyDB *database.DB
	store     *historical.Store
	solvers   *optimization.Registry
	cfg       *config.Config
	monitor   *StatusMonitor
	startedAt time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		historyDB: cfg.HistoryDB,
		store:     cfg.Store,
		solvers:   cfg.Solvers,
		cfg:       cfg.Config,
		monitor:   NewStatusMonitor(cfg.Log),
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	allocator := allocation.NewAllocator(s.solvers, s.log)
	engine := backtest.NewEngine(allocator, s.log)
	limiter := newRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst, s.log)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(limiter.middleware)

			backtesthandlers.NewHandler(s.store, engine, s.cfg.DefaultUniverse, s.cfg.RiskFreeRate, s.log).RegisterRoutes(r)
			optimizationhandlers.NewHandler(s.store, allocator, s.cfg.DefaultUniverse, s.log).RegisterRoutes(r)
			historicalhandlers.NewHandler(s.store, s.log).RegisterRoutes(r)
		})
	})
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the background monitor and then serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.monitor.Start(ctx, 30*time.Second)
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
