package livesync

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter serves the view as JSON, the websocket feed and route
// selection.
func NewRouter(s *Syncer, h *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/view", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.View())
	})
	r.Post("/api/view/route", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			RouteID string `json:"routeId"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON body"})
			return
		}
		s.SelectRoute(strings.TrimSpace(body.RouteID))
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "selectedRoute": strings.TrimSpace(body.RouteID)})
	})
	r.Handle("/ws", h)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
