package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/echobox/internal/middleware"
)

// RouteOptions carries the per-group middleware of the API. Nil fields are
// skipped.
type RouteOptions struct {
	// RateLimit guards the public widget routes.
	RateLimit func(http.Handler) http.Handler
	// Idempotency replays repeated feedback submissions.
	Idempotency func(http.Handler) http.Handler
	// AdminToken returns the bearer token of the developer routes. While it
	// returns "" the routes are open.
	AdminToken func() string
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Widget routes, called from the embedding site.
		r.Group(func(r chi.Router) {
			if opts.RateLimit != nil {
				r.Use(opts.RateLimit)
			}
			r.With(optional(opts.Idempotency)).Post("/feedback", h.SubmitFeedback)
			r.Get("/sessions/{sessionId}/replies", h.ListReplies)
			r.Get("/sessions/{sessionId}/stream", h.Stream.ServeHTTP)
			if h.WS != nil {
				r.Get("/sessions/{sessionId}/ws", h.WS.ServeHTTP)
			}
		})

		// Developer routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(opts.AdminToken))
			r.Post("/sessions/{sessionId}/replies", h.CreateReply)
			r.Post("/channels/{id}/test", h.TestChannel)
		})
	})
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
