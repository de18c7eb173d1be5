// Package server wires the HTTP router, middleware and routes of the
// ranch API, and runs the server with graceful shutdown.
//
// COMPOSITION ROOT:
// Build (wire.go) turns a config.Config into live dependencies: database,
// table store, blob store, auth, services. New takes those dependencies
// and only deals with HTTP. Tests call New with dependencies of their own.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/jacobs-ranch/internal/auth"
	"github.com/sakif/jacobs-ranch/internal/handler"
	"github.com/sakif/jacobs-ranch/internal/identify"
	"github.com/sakif/jacobs-ranch/internal/metrics"
	"github.com/sakif/jacobs-ranch/internal/middleware"
	"github.com/sakif/jacobs-ranch/internal/notify"
)

// Config holds the HTTP-level settings.
type Config struct {
	Port         int
	CORSOrigins  []string
	CookieSecure bool
}

// Deps are the services the routes are served from.
type Deps struct {
	Accounts  handler.Accounts
	Validator auth.SessionValidator
	Sessions  handler.SessionProvider
	Contracts handler.Contracts
	// Classifier may be nil; /api/identify then answers 503.
	Classifier identify.Classifier
	Bus        *notify.Bus
	Metrics    *metrics.Metrics
	// Health reports whether the backing stores are reachable.
	Health func(ctx context.Context) error
	// Closers run in order after the server stops.
	Closers []func() error
}

// Server is the HTTP server and the resources it owns.
type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures middleware and routes.
//
// ROUTES:
// GET    /healthz                    → store reachability
// GET    /metrics                    → prometheus scrape
// POST   /api/auth/signup|login      → public
// GET    /api/auth/verify            → public (link from the email)
// everything else under /api         → requires a session token
//
// MIDDLEWARE ORDER:
// RequestID first so the logger can print it; Recoverer inside the logger
// so a panic is logged as the 500 it becomes.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, "/healthz", "/metrics"))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(corsOptions(s.config.CORSOrigins)))

	s.router.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	authHandler := handler.NewAuthHandler(s.deps.Accounts, s.config.CookieSecure, s.logger)
	ranchHandler := handler.NewRanchHandler(s.deps.Sessions, s.logger)
	contractHandler := handler.NewContractHandler(s.deps.Contracts, s.logger)
	identifyHandler := handler.NewIdentifyHandler(s.deps.Classifier, s.logger)
	eventsHandler := handler.NewEventsHandler(s.deps.Bus, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", authHandler.HandleSignUp)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Get("/auth/verify", authHandler.HandleVerify)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.deps.Validator))

			r.Post("/auth/logout", authHandler.HandleLogout)
			r.Get("/auth/me", authHandler.HandleMe)
			r.Put("/auth/password", authHandler.HandleChangePassword)
			r.Put("/auth/email", authHandler.HandleUpdateEmail)
			r.Post("/auth/verification", authHandler.HandleResendVerification)

			r.Get("/profile", ranchHandler.HandleGetProfile)
			r.Patch("/profile", ranchHandler.HandlePatchProfile)
			r.Get("/fees", ranchHandler.HandleFees)
			r.Get("/stalls", ranchHandler.HandleStalls)

			r.Get("/horses", ranchHandler.HandleListHorses)
			r.Post("/horses", ranchHandler.HandleAddHorse)
			r.Put("/horses", ranchHandler.HandleSaveRoster)
			r.Delete("/horses/{id}", ranchHandler.HandleDeleteHorse)

			r.Get("/contract", contractHandler.HandleGetContract)
			r.Post("/identify", identifyHandler.HandleIdentify)
			r.Get("/events", eventsHandler.HandleStream)
		})
	})
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, "ok"
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			s.logger.Warn("health check failed", slog.String("error", err.Error()))
			status, body = http.StatusServiceUnavailable, "unavailable"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"status":%q}`+"\n", body)
}

// Start runs the server until SIGINT or SIGTERM, then drains in-flight
// requests for up to 30 seconds and releases the owned resources.
//
// GRACEFUL SHUTDOWN:
//  1. ListenAndServe runs in its own goroutine; Start blocks on a select.
//  2. A signal (Ctrl+C, or SIGTERM from the process manager) wakes it.
//  3. srv.Shutdown stops accepting connections and waits for the active
//     requests. Open event streams end when their request context is
//     cancelled.
//  4. The deferred close runs the Closers (database pool) last, so no
//     request is still using them.
//
// TIMEOUTS:
// ReadHeaderTimeout guards against clients that open a connection and
// trickle headers. WriteTimeout bounds a normal JSON response; the event
// stream clears its own deadline through http.ResponseController.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

func (s *Server) close() {
	for _, c := range s.deps.Closers {
		if err := c(); err != nil {
			s.logger.Error("closing resource", slog.String("error", err.Error()))
		}
	}
}
