// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/backup"
	"github.com/taibuivan/dreamlog/internal/blog/comment"
	"github.com/taibuivan/dreamlog/internal/blog/post"
	"github.com/taibuivan/dreamlog/internal/blog/subscriber"
	"github.com/taibuivan/dreamlog/internal/identity"
	"github.com/taibuivan/dreamlog/internal/platform/config"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/metrics"
	"github.com/taibuivan/dreamlog/internal/platform/middleware"
	"github.com/taibuivan/dreamlog/internal/users"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
type Handlers struct {
	// Liveness is the /health handler and always returns 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler and returns 200 when every dependency is healthy.
	Readiness http.HandlerFunc

	// Metrics serves the Prometheus registry. Optional.
	Metrics http.Handler

	// Access resolves principals and enforces capabilities.
	Access *authz.Service

	Identity    *identity.Handler
	Authz       *authz.Handler
	Users       *users.Handler
	Posts       *post.Handler
	Comments    *comment.Handler
	Subscribers *subscriber.Handler
	Backups     *backup.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(ctx context.Context, cfg *config.Config, log *slog.Logger, verifier middleware.TokenVerifier, m *metrics.Metrics, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(metrics.Middleware(m))
	r.Use(middleware.RateLimit(ctx))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.SecureHeaders(cfg, log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	// # Application API
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Authenticate(verifier))
		api.Use(h.Access.Resolve)

		// Access streams stay open for the life of the client.
		api.Mount("/access", h.Authz.AccessRoutes())

		api.Group(func(timed chi.Router) {
			timed.Use(chimw.Timeout(constants.GlobalRequestTimeout))

			timed.Mount("/auth", h.Identity.Routes())
			timed.Mount("/me", h.Authz.MeRoutes())
			timed.Mount("/profile", h.Users.ProfileRoutes())
			timed.Mount("/petitions", h.Authz.PetitionRoutes())
			timed.Mount("/admin/users", h.Users.AdminRoutes())
			timed.Mount("/admin/backups", h.Backups.Routes())
			timed.Mount("/posts", h.Posts.Routes())
			timed.Mount("/categories", h.Posts.CategoryRoutes())
			timed.Mount("/tags", h.Posts.TagRoutes())
			timed.Mount("/comments", h.Comments.Routes())
			timed.Mount("/subscribers", h.Subscribers.Routes())
		})
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
