// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It connects the store, services,
// handlers, and middleware, and decides:
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	cmd/server loads config.Config and opens a repository.Store
//	server.New builds: services(store) → handlers(services) → routes
//
// Everything is assembled in New; nothing below this package reaches for a
// global.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/study-tracker/internal/auth"
	"github.com/sakif/study-tracker/internal/config"
	"github.com/sakif/study-tracker/internal/handler"
	"github.com/sakif/study-tracker/internal/mail"
	"github.com/sakif/study-tracker/internal/metrics"
	"github.com/sakif/study-tracker/internal/middleware"
	"github.com/sakif/study-tracker/internal/repository"
	"github.com/sakif/study-tracker/internal/repository/postgres"
	sqliteRepo "github.com/sakif/study-tracker/internal/repository/sqlite"
	"github.com/sakif/study-tracker/internal/service"
)

// ShutdownTimeout is how long in-flight requests get once shutdown starts.
const ShutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store, the mail dispatcher's workers, and the rate
// limiter's cleanup goroutine. Close releases all three.
type Server struct {
	router     *chi.Mux
	config     *config.Config
	logger     *slog.Logger
	store      repository.Store
	dispatcher *mail.Dispatcher
	limiter    *middleware.RateLimiter
	registry   *prometheus.Registry

	closeOnce sync.Once
	closeErr  error
}

// OpenStore opens the backend named by cfg.DB.Driver and brings its schema
// up to date.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.DB.Driver {
	case "postgres":
		version, err := postgres.Migrate(cfg.DB.URL)
		if err != nil {
			return nil, fmt.Errorf("server: migrating postgres: %w", err)
		}
		logger.Info("postgres schema ready", slog.Uint64("version", uint64(version)))

		db, err := postgres.Open(ctx, cfg.DB.URL, postgres.DefaultConnectOptions(), logger)
		if err != nil {
			return nil, fmt.Errorf("server: opening postgres: %w", err)
		}
		return db, nil

	default:
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, err
		}
		db, err := sqliteRepo.New(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("server: opening sqlite: %w", err)
		}
		return db, nil
	}
}

// New wires every layer on top of store and starts the background workers.
// sender delivers verification email; pass a mail.Client in production.
//
// The Server takes ownership of store: Close (or the end of Start) closes it.
func New(cfg *config.Config, store repository.Store, sender mail.Sender, logger *slog.Logger) (*Server, error) {
	sessions, err := auth.NewSessionService(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("server: session service: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	dispatcher := mail.NewDispatcher(sender, mail.DispatcherConfig{
		Workers:   cfg.Mail.Workers,
		QueueSize: cfg.Mail.Queue,
		Timeout:   cfg.Mail.Timeout,
	}, collector, logger)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		PerMinute:       cfg.RateLimit.PerMinute,
		Burst:           cfg.RateLimit.Burst,
		CleanupInterval: middleware.DefaultRateLimiterConfig().CleanupInterval,
	}, collector, logger)

	accounts := service.NewAccountService(
		store,
		auth.NewPasswordServiceWithCost(cfg.Bcrypt.Cost),
		auth.NewVerificationTokenIssuer(cfg.Verify.TTL),
		sessions,
		dispatcher,
		collector,
		cfg.App.BaseURL,
		logger,
	)

	s := &Server{
		router:     chi.NewRouter(),
		config:     cfg,
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		limiter:    limiter,
		registry:   registry,
	}
	s.setupRoutes(accounts, collector)

	dispatcher.Start()
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                     → store ping
//	GET    /metrics                     → Prometheus
//	POST   /register                    → create account      (rate limited)
//	GET    /verify-email?token=         → verify, 303 to /login
//	POST   /resend-verification         → new link            (rate limited)
//	POST   /login                       → session cookie      (rate limited)
//	POST   /logout, GET /logout         → clear cookie
//
//	requires a session:
//	GET    /api/current-user
//	GET    /api/profile, POST /profile
//	GET    /api/assignments, POST /api/assignments
//	PATCH  /api/assignments/{id}, DELETE /api/assignments/{id}
//	GET    /api/lessons, POST /api/lessons
//	POST   /api/lessons/{id}/study, DELETE /api/lessons/{id}
//	GET    /api/forgetting-curves
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique id per request, picked up by the logger
//  2. RealIP: client IP from proxy headers, only with http.trustproxy set;
//     otherwise the rate limiter keys on the socket address
//  3. Recoverer: a panic becomes a 500 instead of killing the process
//  4. Logger: one log line and one metric per request
//  5. LoadUser: resolves the session cookie for every route
func (s *Server) setupRoutes(accounts *service.AccountService, collector *metrics.Collector) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	if s.config.HTTP.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger, collector))
	r.Use(middleware.SecurityHeaders)
	r.Use(auth.LoadUser(accounts, s.logger))

	health := handler.NewHealthHandler(s.store, s.logger)
	r.Get("/healthz", health.HandleHealth)
	r.Handle("/metrics", metrics.Handler(s.registry))

	accountHandler := handler.NewAccountHandler(accounts, s.config.SecureCookies(), s.logger)

	r.With(s.limiter.Middleware("register")).Post("/register", accountHandler.HandleRegister)
	r.Get("/verify-email", accountHandler.HandleVerifyEmail)
	r.With(s.limiter.Middleware("resend_verification")).Post("/resend-verification", accountHandler.HandleResendVerification)
	r.With(s.limiter.Middleware("login")).Post("/login", accountHandler.HandleLogin)
	r.Post("/logout", accountHandler.HandleLogout)
	r.Get("/logout", accountHandler.HandleLogout)

	study := handler.NewStudyHandler(
		service.NewProfileService(s.store, s.logger),
		service.NewAssignmentService(s.store, s.logger),
		service.NewLessonService(s.store, s.logger),
		s.logger,
	)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)

		r.Post("/profile", study.HandleSaveProfile)

		r.Route("/api", func(r chi.Router) {
			r.Get("/current-user", accountHandler.HandleCurrentUser)
			r.Get("/profile", study.HandleGetProfile)

			r.Get("/assignments", study.HandleListAssignments)
			r.Post("/assignments", study.HandleCreateAssignment)
			r.Patch("/assignments/{id}", study.HandleUpdateAssignment)
			r.Delete("/assignments/{id}", study.HandleDeleteAssignment)

			r.Get("/lessons", study.HandleListLessons)
			r.Post("/lessons", study.HandleCreateLesson)
			r.Post("/lessons/{id}/study", study.HandleStudyLesson)
			r.Delete("/lessons/{id}", study.HandleDeleteLesson)

			r.Get("/forgetting-curves", study.HandleForgettingCurves)
		})
	})
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. stop accepting connections and let in-flight requests finish
//  2. stop the mail workers (queued messages are dropped)
//  3. close the store
func (s *Server) Start(ctx context.Context) error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing server", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.HTTP.Port),
			slog.String("url", s.config.App.BaseURL),
			slog.String("driver", s.config.DB.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close stops the background workers and closes the store. Only the first
// call does anything.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.dispatcher.Stop()
		s.limiter.Stop()
		if err := s.store.Close(); err != nil {
			s.closeErr = fmt.Errorf("server: closing store: %w", err)
		}
	})
	return s.closeErr
}
