package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath is where the push channel is served when websocket.path is
// unset.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Push channel. Authenticates itself from ?ticket= or ?token= because
	// browsers cannot set headers on a WebSocket handshake.
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.With(s.fleetPermission).Get("/dashboard/summary", s.handleSummary)

			for _, res := range resources() {
				s.mount(r, res, s.extraRoutes(res.entity.Name)...)
			}
		})
	})

	return r
}
