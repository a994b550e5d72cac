package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/opensource-finance/spiritx/internal/auth"
	"github.com/opensource-finance/spiritx/internal/chatbot"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/live"
	"github.com/opensource-finance/spiritx/internal/mcptools"
	"github.com/opensource-finance/spiritx/internal/metrics"
	"github.com/opensource-finance/spiritx/internal/query"
)

// Deps are the services the API is built on. Repo, Auth and Query are
// required; the rest degrade gracefully when nil.
type Deps struct {
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Auth    *auth.Service
	Query   *query.Engine
	Chatbot *chatbot.Bot
	Hub     *live.Hub
	Metrics *metrics.Recorder
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps, version string) *Server {
	if deps.Chatbot == nil {
		deps.Chatbot = chatbot.New(deps.Repo, deps.Query, nil)
	}
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader, "Mcp-Session-Id"},
		ExposedHeaders:   []string{RequestIDHeader, TraceIDHeader, "Mcp-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware(deps.Metrics))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", handler.Register)
		r.Post("/auth/login", handler.Login)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireUser)

			r.Post("/auth/logout", handler.Logout)

			r.Get("/players", handler.ListPlayers)
			r.Get("/players/{id}", handler.GetPlayer)

			r.Get("/teams/me", handler.GetMyTeam)
			r.Put("/teams/me", handler.RenameTeam)
			r.Post("/teams/me/players", handler.AddTeamPlayer)
			r.Delete("/teams/me/players/{playerId}", handler.RemoveTeamPlayer)

			r.Get("/leaderboard", handler.Leaderboard)
			r.Post("/chatbot/query", handler.ChatbotQuery)

			if deps.Hub != nil {
				r.Method(http.MethodGet, "/live", deps.Hub.Handler(originChecker(cfg.AllowedOrigins)))
			}

			mcpServer := mcptools.NewServer(deps.Repo, deps.Query, version)
			r.Handle("/mcp", mcptools.Handler(mcpServer))

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)

				r.Get("/stats", handler.AdminStats)
				r.Get("/summary", handler.TournamentSummary)

				r.Post("/players/import", handler.ImportPlayers)
				r.Get("/players", handler.AdminListPlayers)
				r.Post("/players", handler.CreatePlayer)
				r.Delete("/players", handler.DeleteAllPlayers)
				r.Get("/players/{id}", handler.GetPlayer)
				r.Put("/players/{id}", handler.UpdatePlayer)
				r.Delete("/players/{id}", handler.DeletePlayer)
			})
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// originChecker allows websocket handshakes from the configured origins.
// Requests without an Origin header are not from a browser and pass.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
