package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a chi router with all API routes mounted behind Bearer
// auth. The health endpoint stays outside the auth group for probes.
func NewRouter(svc AgentService, notes NoteAppender, token string) chi.Router {
	h := NewHandler(svc, notes)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(token))
		r.Post("/agent", h.Agent)
		r.Post("/voice-note", h.VoiceNote)
	})

	return r
}
