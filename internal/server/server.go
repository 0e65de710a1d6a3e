// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects storage, services,
// handlers, middleware, and the realtime hub, and decides:
//   - Which URL patterns map to which handler functions
//   - Which routes need a session, which are rate limited
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB ───────────────┐
//	  TokenService, Passwords  ├→ services → handlers → routes
//	  realtime.Hub (+ Bridge) ─┘  (the hub is the services' EventPublisher)
//
// This is the "composition root" pattern: all dependencies are wired in one
// place instead of being scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/xswarm-forum/internal/auth"
	"github.com/sakif/xswarm-forum/internal/config"
	"github.com/sakif/xswarm-forum/internal/handler"
	"github.com/sakif/xswarm-forum/internal/middleware"
	"github.com/sakif/xswarm-forum/internal/realtime"
	sqliteRepo "github.com/sakif/xswarm-forum/internal/repository/sqlite"
	"github.com/sakif/xswarm-forum/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database, the realtime hub, and the optional NATS
// bridge. Close releases them in reverse order of creation.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db     *sqliteRepo.DB
	hub    *realtime.Hub
	bridge *realtime.Bridge // nil when NATS_URL is unset or unreachable
}

// New opens the database, starts the realtime hub, and builds the router.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		hub:    realtime.NewHub(logger, cfg.CORSOrigins),
	}
	s.hub.Start()

	// Without NATS, events go straight to this instance's hub. A NATS
	// failure at startup is not fatal: the forum still works on one node.
	var events service.EventPublisher = s.hub
	if cfg.NATSURL != "" {
		bridge, err := realtime.ConnectBridge(cfg.NATSURL, cfg.NATSSubject, s.hub, logger)
		if err != nil {
			logger.Warn("NATS unavailable, realtime events stay local",
				slog.String("url", cfg.NATSURL),
				slog.String("error", err.Error()),
			)
		} else {
			s.bridge = bridge
			events = bridge
		}
	}

	if err := s.setupRoutes(events); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                       → liveness + DB ping
//	GET  /ws                            → realtime event stream
//	GET  /auth/github/{login,callback}  → only when GitHub is configured
//	     /api/...                       → JSON API (OptionalAuth on everything)
//	       public reads                 → me, posts, comments, user profiles
//	       signup, login                → rate limited
//	       writes                       → RequireAuth + rate limited
//	GET  /*                             → static client files (STATIC_DIR)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so the logger can record it, RealIP before anything that
// looks at the client address (logging, rate limiting), Recoverer innermost
// of the globals so a panic is still logged as a 500.
func (s *Server) setupRoutes(events service.EventPublisher) error {
	cfg := s.config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// === Auth plumbing ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}

	// === Services ===
	// s.db implements every repository interface; each service only sees
	// the slice it needs.
	authSvc := service.NewAuthService(s.db, tokens, passwords, cfg.ModeratorUsername, s.logger)
	postSvc := service.NewPostService(s.db, s.db, events, s.logger)
	commentSvc := service.NewCommentService(s.db, s.db, events, s.logger)
	voteSvc := service.NewVoteService(s.db, s.db, s.db, s.db, events, s.logger)
	modSvc := service.NewModerationService(s.db, s.db, s.db, s.db, events, s.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := authSvc.EnsureModerator(ctx); err != nil {
		return err
	}

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authSvc, tokens, github, s.logger)
	postHandler := handler.NewPostHandler(postSvc, s.logger)
	commentHandler := handler.NewCommentHandler(commentSvc, s.logger)
	voteHandler := handler.NewVoteHandler(voteSvc, s.logger)
	modHandler := handler.NewModerationHandler(modSvc, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/ws", s.hub)

	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))

		r.Get("/me", authHandler.HandleMe)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/posts", postHandler.HandleList)
		r.Get("/posts/{id}", postHandler.HandleGet)
		r.Get("/comments/{postId}", commentHandler.HandleList)
		r.Get("/user/{username}", postHandler.HandleProfile)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Use(limiter.Middleware)

			r.Post("/posts", postHandler.HandleCreate)
			r.Post("/comments", commentHandler.HandleCreate)
			r.Post("/vote", voteHandler.HandleVotePost)
			r.Post("/voteComment", voteHandler.HandleVoteComment)

			// Moderator-only. The service checks the role.
			r.Post("/terminate/{username}", modHandler.HandleTerminate)
			r.Post("/mod/deletePost", modHandler.HandleModDeletePost)
			r.Post("/mod/deleteComment", modHandler.HandleModDeleteComment)
			r.Delete("/posts/{id}", modHandler.HandleDeletePost)
			r.Delete("/comments/{id}", modHandler.HandleDeleteComment)
		})
	})

	// === Static Files ===
	// GET /css/site.css → serves {StaticDir}/css/site.css
	if cfg.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close NATS, disconnect WebSocket clients, close the database
//
// WebSocket connections are hijacked, so http.Server.Shutdown does not wait
// for them; the hub's Stop closes them in step 3.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("github", s.config.GitHubEnabled()),
			slog.Bool("nats", s.bridge != nil),
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

// Close releases the NATS connection, the hub, and the database.
func (s *Server) Close() error {
	var errs []error
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.hub.Stop()
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}
