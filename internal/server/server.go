// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: config in, a running service out. New opens
// the store, builds services and handlers, mounts routes, and prepares the
// sweep scheduler. Start runs the HTTP server and the scheduler side by side
// under one errgroup and stops both when the context is cancelled.
//
// Dependency flow:
//
//	config.Config → repository.Store (sqlite | jsonfile)
//	Store → AccountService, SubscriptionService → handlers → chi routes
//	Store + notify.Notifier → sweep.Sweeper → sweep.Scheduler
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/birthday-reminder/internal/auth"
	"github.com/sakif/birthday-reminder/internal/config"
	"github.com/sakif/birthday-reminder/internal/handler"
	"github.com/sakif/birthday-reminder/internal/middleware"
	"github.com/sakif/birthday-reminder/internal/notify"
	"github.com/sakif/birthday-reminder/internal/repository"
	"github.com/sakif/birthday-reminder/internal/repository/jsonfile"
	sqliteRepo "github.com/sakif/birthday-reminder/internal/repository/sqlite"
	"github.com/sakif/birthday-reminder/internal/service"
	"github.com/sakif/birthday-reminder/internal/sweep"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
// It owns the store and closes it in Close.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	store     repository.Store
	scheduler *sweep.Scheduler // nil when SWEEP_ENABLED=false
}

// OpenStore opens the backend selected by cfg.StoreDriver, creating the
// parent directory of the store file if needed.
func OpenStore(cfg *config.Config) (repository.Store, error) {
	if cfg.StorePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	switch cfg.StoreDriver {
	case config.DriverJSON:
		return jsonfile.Open(cfg.StorePath)
	case config.DriverSQLite:
		return sqliteRepo.New(cfg.StorePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewNotifier builds the delivery chain: console always, SendGrid email
// when an API key is configured.
func NewNotifier(cfg *config.Config, out io.Writer, logger *slog.Logger) notify.Multi {
	chain := notify.Multi{notify.NewConsole(out)}
	if cfg.EmailEnabled() {
		chain = append(chain, notify.NewEmail(notify.EmailConfig{
			APIKey: cfg.SendGridAPIKey,
			From:   cfg.SendGridFrom,
		}, logger))
		logger.Info("email notifications enabled", slog.String("from", cfg.SendGridFrom))
	}
	return chain
}

// New opens the configured store and wires the server around it.
// Notifications are printed to stdout.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.StoreDriver, err)
	}

	s, err := NewWithStore(cfg, store, NewNotifier(cfg, os.Stdout, logger), logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore wires the server around an already-open store and notifier.
// The server takes ownership of store.
func NewWithStore(cfg *config.Config, store repository.Store, notifier notify.Notifier, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	var tokens *auth.TokenService
	if cfg.AuthEnabled() {
		var err error
		tokens, err = auth.NewTokenService(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("creating token service: %w", err)
		}
	} else {
		logger.Warn("JWT_SECRET not set, mutating routes are unauthenticated")
	}

	s.setupRoutes(tokens)

	if cfg.SweepEnabled {
		sweeper := sweep.NewSweeper(store, store, notifier, logger)
		s.scheduler = sweep.NewScheduler(sweeper, cfg.SweepInterval, logger,
			sweep.WithLocation(cfg.Location))
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
//	GET  /healthz                          liveness
//	GET  /metrics                          Prometheus exposition
//	POST /register                         create account
//	POST /login                            check credentials (rate limited)
//	GET  /users                            all accounts
//	GET  /profile/{username}               one account
//	PUT  /profile/{username}               partial profile update      (auth)
//	POST /subscribe/{username}/{target}    follow target's birthday    (auth)
//	POST /unsubscribe/{username}/{target}  stop following              (auth)
//
// Routes marked (auth) require a bearer token for {username} when a JWT
// secret is configured, and are open otherwise.
func (s *Server) setupRoutes(tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)

	passwords := auth.NewPasswordService()
	accountService := service.NewAccountService(s.store, passwords, tokens, s.logger)
	subscriptionService := service.NewSubscriptionService(s.store, s.logger)
	accountHandler := handler.NewAccountHandler(accountService, s.logger)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService, s.logger)

	loginLimiter := middleware.NewRateLimiter(s.config.LoginRate, s.config.LoginBurst)

	s.router.Get("/healthz", handler.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Post("/register", accountHandler.HandleRegister)
	s.router.With(loginLimiter.Middleware("/login")).Post("/login", accountHandler.HandleLogin)
	s.router.Get("/users", accountHandler.HandleListUsers)
	s.router.Get("/profile/{username}", accountHandler.HandleGetProfile)

	s.router.Group(func(r chi.Router) {
		if tokens != nil {
			r.Use(auth.RequireAuth(tokens))
		}
		r.Put("/profile/{username}", accountHandler.HandleUpdateProfile)
		r.Post("/subscribe/{username}/{target}", subscriptionHandler.HandleSubscribe)
		r.Post("/unsubscribe/{username}/{target}", subscriptionHandler.HandleUnsubscribe)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln and, when enabled, the sweep scheduler.
// When ctx is cancelled, in-flight requests get shutdownTimeout to finish.
// A server failure stops the scheduler too. Serve returns nil after a clean
// shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("store", s.config.StoreDriver),
			slog.String("path", s.config.StorePath),
			slog.Bool("auth", s.config.AuthEnabled()),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	if s.scheduler != nil {
		g.Go(func() error {
			return s.scheduler.Run(gctx)
		})
	}

	return g.Wait()
}

// Close releases the store.
func (s *Server) Close() error {
	return s.store.Close()
}
