package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"tsureben-backend/internal/handlers"
	"tsureben-backend/internal/middleware"
	"tsureben-backend/internal/websocket"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Profile  *handlers.ProfileHandler
	Plans    *handlers.PlanHandler
	Pomodoro *handlers.PomodoroHandler
	Presence *handlers.PresenceHandler
	Mates    *handlers.MatesHandler
	Stats    *handlers.StatsHandler
}

func New(jwtAuth *middleware.JWTAuth, h Handlers, wsHub *websocket.Hub, frontendURL string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute, 5)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/google", h.Auth.Google)
			r.Post("/refresh", h.Auth.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", h.Auth.Logout)
			})
		})

		// ──── User & Settings Routes ────
		r.Route("/user", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/me", h.Profile.Me)
			r.Put("/me/profile", h.Profile.Setup)
			r.Put("/settings", h.Profile.UpdateSettings)
			r.Get("/plan-history", h.Profile.PlanHistory)
			r.Post("/bulk-rename", h.Profile.BulkRename)
		})

		r.With(jwtAuth.Middleware).Get("/students", h.Profile.Students)

		// ──── Plan Routes ────
		r.Route("/plans/{date}", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", h.Plans.Day)
			r.Get("/grid", h.Plans.Grid)
			r.Post("/", h.Plans.Create)
			r.Put("/{hour}/{index}", h.Plans.Update)
			r.Delete("/{hour}/{index}", h.Plans.Delete)
		})

		// ──── Pomodoro Routes ────
		r.Route("/pomodoro", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Get("/status", h.Pomodoro.Status)
				r.Post("/start", h.Pomodoro.Start)
				r.Post("/pause", h.Pomodoro.Pause)
				r.Post("/resume", h.Pomodoro.Resume)
				r.Post("/discard", h.Pomodoro.Discard)
			})

			// A session may outlive the access token.
			r.With(jwtAuth.AllowExpired).Post("/finish", h.Pomodoro.Finish)
		})

		r.With(jwtAuth.Middleware).Get("/presence", h.Presence.List)

		// ──── Mates Routes ────
		r.Route("/mates", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", h.Mates.Overview)
			r.Get("/search", h.Mates.Search)
			r.Post("/requests", h.Mates.Request)
			r.Delete("/requests/{email}", h.Mates.CancelRequest)
			r.Post("/{email}/accept", h.Mates.Accept)
			r.Post("/{email}/hide", h.Mates.Hide)
			r.Delete("/{email}/hide", h.Mates.Unhide)
		})

		// ──── Stats Routes ────
		r.Route("/stats", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/daily", h.Stats.Daily)
			r.Get("/trend", h.Stats.Trend)
			r.Get("/stacked", h.Stats.Stacked)
			r.Get("/summary/{window}", h.Stats.Summary)
		})

		// ──── Job Routes ────
		r.With(jwtAuth.Middleware).Get("/jobs/{id}", h.Profile.Job)

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
