package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"immersia-backend/internal/handlers"
	"immersia-backend/internal/middleware"
	"immersia-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	activityHandler *handlers.ActivityHandler,
	wsHub *websocket.Hub,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)

	// Login rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// ──── Extension ingestion ────
	// Identity resolution happens inside the handler, after schema
	// validation; the route itself only handles CORS.
	r.Route("/extension", func(r chi.Router) {
		r.Use(middleware.CORS("GET,POST,OPTIONS"))
		r.Options("/record-content-activity", func(w http.ResponseWriter, r *http.Request) {})
		r.Post("/record-content-activity", activityHandler.Record)
	})

	// ──── Web app API ────
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS("GET,OPTIONS"))

		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/login", authHandler.Login)
		})

		// Credential mint for the extension relay; authenticated by the
		// session cookie, not a bearer token.
		r.Get("/convex/token", authHandler.MintToken)

		// ──── Live activity feed ────
		r.Get("/v1/ws", wsHub.HandleWebSocket)
	})

	return r
}
