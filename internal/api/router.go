package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter wires the handler into a chi router with CORS, panic recovery
// and OpenTelemetry server spans.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/health", h.GetHealth)
	r.Post("/api/gps/update", h.PostGPSUpdate)
	r.Get("/api/buses/live", h.GetLiveBuses)
	r.Get("/api/bus/{busId}/latest", h.GetLatest)
	r.Get("/api/bus/{busId}/eta", h.GetETA)
	r.Get("/api/routes", h.GetRoutes)
	r.Get("/api/routes/{routeId}/stops", h.GetRouteStops)
	r.Get("/api/gtfs-rt/vehicle-positions", h.GetVehiclePositionsFeed)
	if h.admin != nil {
		r.Route("/api/admin", func(r chi.Router) {
			r.Post("/routes", h.PostRoute)
			r.Post("/stops", h.PostStop)
		})
	}

	return otelhttp.NewHandler(r, "tracker-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
