package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/summary", s.handleSummary)
		r.Post("/commands", s.handleCommand)
		r.Post("/poll", s.handlePoll)
		r.Get("/audit", s.handleListAudit)

		r.Route("/motors", func(r chi.Router) {
			r.Get("/", s.handleListMotors)

			r.Route("/{number}", func(r chi.Router) {
				r.Get("/", s.handleGetMotor)
				r.Get("/events", s.handleListMotorEvents)
				r.Post("/{action}", s.handleMotorAction)
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	connected := s.driver.Connected()
	if !connected {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"link_connected": connected,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"ws_clients":     s.hub.ClientCount(),
	})
}
