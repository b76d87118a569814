// Package api exposes the hunt engine over HTTP.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/satoshigo/hunt/internal/claim"
	"github.com/satoshigo/hunt/internal/lifecycle"
)

// Dependencies holds what the HTTP server serves.
type Dependencies struct {
	Lifecycle *lifecycle.Manager
	Claims    *claim.Resolver
	Wallets   *Wallets
	// Broadcast serves the websocket feed. Optional.
	Broadcast http.Handler
	Logger    *slog.Logger
	// Timeout bounds each request except the websocket feed.
	Timeout time.Duration
}

// Server handles HTTP requests.
type Server struct {
	mgr       *lifecycle.Manager
	claims    *claim.Resolver
	wallets   *Wallets
	broadcast http.Handler
	logger    *slog.Logger
	timeout   time.Duration
	startTime time.Time
}

// NewServer creates a new API server.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Lifecycle == nil || deps.Claims == nil || deps.Wallets == nil {
		return nil, fmt.Errorf("api server needs lifecycle, claims and wallets")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}
	return &Server{
		mgr:       deps.Lifecycle,
		claims:    deps.Claims,
		wallets:   deps.Wallets,
		broadcast: deps.Broadcast,
		logger:    deps.Logger,
		timeout:   deps.Timeout,
		startTime: time.Now(),
	}, nil
}

// Routes sets up the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		if s.broadcast != nil {
			// long-lived; kept out of the timeout group
			r.Get("/ws", s.broadcast.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))

			r.Get("/health", s.handleHealth)

			// public
			r.Get("/games", s.handleListGames)
			r.Get("/games/{id}", s.handleGetGame)
			r.Post("/games/{id}/enter", s.handleEnterGame)
			r.Post("/funding", s.handleRequestFunding)
			r.Get("/funding/{gameID}/{paymentHash}", s.handlePollFunding)
			r.Get("/funding/{id}", s.handleGetFunding)
			r.Post("/items/{id}/collect", s.handleCollect)
			r.Post("/find/areas", s.handleFindAreas)
			r.Get("/find/areas/{id}", s.handleGetArea)
			r.Post("/players", s.handleRegisterPlayer)
			r.Get("/players/{id}", s.handleGetPlayer)
			r.Get("/players/key/{inkey}", s.handleGetPlayerByKey)

			// any wallet key
			r.Group(func(r chi.Router) {
				r.Use(s.requireWallet(false))
				r.Get("/admin/games", s.handleAdminGames)
				r.Get("/games/{id}/admin", s.handleGetGameAdmin)
				r.Get("/games/players", s.handleGamePlayers)
			})

			// admin key
			r.Group(func(r chi.Router) {
				r.Use(s.requireWallet(true))
				r.Post("/games", s.handleCreateGame)
				r.Put("/games/{id}", s.handleUpdateGame)
				r.Delete("/games/{id}", s.handleDeleteGame)
				r.Post("/items", s.handleCreateItem)
				r.Put("/items/{id}", s.handleUpdateItem)
				r.Put("/players/{id}", s.handleUpdatePlayer)
			})
		})
	})

	return r
}
