/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/{id}/*    Per-user progression operations
  /api/achievements/*  Achievement catalog (admin)
  /api/skills/*        Skill catalog (admin)
  /api/scenarios/*     Demo data loaders (development only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Per-user operations
		r.Route("/users/{id}", func(r chi.Router) {
			r.Post("/award", h.Award)
			r.Post("/spend", h.Spend)
			r.Post("/activity", h.RecordActivity)

			r.Get("/wallet", h.GetWallet)
			r.Get("/ledger", h.GetLedger)
			r.Get("/skills", h.GetSkills)
			r.Get("/streaks/{type}", h.GetStreak)
			r.Get("/achievements", h.GetAchievements)
			r.Get("/achievements/teaser", h.GetTeaser)
			r.Get("/events", h.GetEvents)
			r.Get("/summary", h.GetSummary)
		})

		// Achievement catalog (admin)
		r.Route("/achievements", func(r chi.Router) {
			r.Get("/", h.ListAchievementDefinitions)
			r.Post("/", h.SaveAchievementDefinition)
		})

		// Skill catalog (admin)
		r.Route("/skills", func(r chi.Router) {
			r.Get("/", h.ListSkillDefinitions)
			r.Post("/", h.SaveSkillDefinition)
		})

		// Demo scenarios (development only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
