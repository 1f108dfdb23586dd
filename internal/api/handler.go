// Package api exposes the tracker over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/eta"
	"transit-tracker/internal/feed"
	"transit-tracker/internal/fleet"
	"transit-tracker/internal/ingest"
)

const maxBodyBytes = 1 << 20

// Reporter accepts position reports, satisfied by *ingest.Gateway.
type Reporter interface {
	Report(ctx context.Context, r ingest.Report) (fleet.VehicleState, error)
}

// States is the read side of the vehicle state store.
type States interface {
	Get(ctx context.Context, vehicleID string) (fleet.VehicleState, error)
	ListAll(ctx context.Context, limit int) ([]fleet.VehicleState, error)
}

type Estimator interface {
	Estimate(ctx context.Context, vehicleID string, opts eta.Options) (eta.Result, error)
}

// Catalog is the ordered read side, satisfied by *catalog.Index.
type Catalog interface {
	Routes(ctx context.Context) ([]catalog.Route, error)
	StopsForRoute(ctx context.Context, routeID string) ([]catalog.Stop, error)
}

type Handler struct {
	reporter      Reporter
	states        States
	estimator     Estimator
	catalog       Catalog
	admin         catalog.Admin
	snapshotLimit int
	now           func() time.Time
}

type Deps struct {
	Reporter  Reporter
	States    States
	Estimator Estimator
	Catalog   Catalog
	// Admin may be nil, which disables the admin endpoints.
	Admin         catalog.Admin
	SnapshotLimit int
	Now           func() time.Time
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		reporter:      d.Reporter,
		states:        d.States,
		estimator:     d.Estimator,
		catalog:       d.Catalog,
		admin:         d.Admin,
		snapshotLimit: fleet.ClampLimit(d.SnapshotLimit),
		now:           d.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	ErrorKind string `json:"errorKind,omitempty"`
}

type reportResponse struct {
	OK bool `json:"ok"`
	ingest.Outcome
}

// ETAResponse is the body of GET /api/bus/{busId}/eta.
type ETAResponse struct {
	OK bool `json:"ok"`
	eta.Result
}

// PostGPSUpdate handles POST /api/gps/update.
func (h *Handler) PostGPSUpdate(w http.ResponseWriter, r *http.Request) {
	var rep ingest.Report
	if err := decodeBody(w, r, &rep); err != nil {
		err = fmt.Errorf("%w: %v", fleet.ErrInvalidType, err)
		writeJSON(w, http.StatusBadRequest, reportResponse{Outcome: ingest.NewOutcome(fleet.VehicleState{}, err)})
		return
	}
	st, err := h.reporter.Report(r.Context(), rep)
	out := reportResponse{OK: err == nil, Outcome: ingest.NewOutcome(st, err)}
	if err != nil {
		writeJSON(w, statusFor(err), out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetLiveBuses handles GET /api/buses/live?limit=. Most recent first.
func (h *Handler) GetLiveBuses(w http.ResponseWriter, r *http.Request) {
	limit := h.snapshotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: limit %q", fleet.ErrInvalidType, raw))
			return
		}
		limit = n
	}
	states, err := h.states.ListAll(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, states)
}

// GetLatest handles GET /api/bus/{busId}/latest.
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	st, err := h.states.Get(r.Context(), strings.TrimSpace(chi.URLParam(r, "busId")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetETA handles GET /api/bus/{busId}/eta?count=&minSpeed=.
func (h *Handler) GetETA(w http.ResponseWriter, r *http.Request) {
	var opts eta.Options
	q := r.URL.Query()
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: count %q", fleet.ErrInvalidType, raw))
			return
		}
		opts.NearestCount = n
	}
	if raw := q.Get("minSpeed"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: minSpeed %q", fleet.ErrInvalidType, raw))
			return
		}
		opts.MinSpeedKmh = f
	}
	res, err := h.estimator.Estimate(r.Context(), strings.TrimSpace(chi.URLParam(r, "busId")), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ETAResponse{OK: true, Result: res})
}

// GetRoutes handles GET /api/routes, sorted by routeId.
func (h *Handler) GetRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.catalog.Routes(r.Context())
	if err != nil {
		writeError(w, fleet.WrapStorage("routes", err))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, routes)
}

// GetRouteStops handles GET /api/routes/{routeId}/stops, sorted by sequence.
func (h *Handler) GetRouteStops(w http.ResponseWriter, r *http.Request) {
	stops, err := h.catalog.StopsForRoute(r.Context(), chi.URLParam(r, "routeId"))
	if err != nil {
		writeError(w, fleet.WrapStorage("stops", err))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, stops)
}

// PostRoute handles POST /api/admin/routes.
func (h *Handler) PostRoute(w http.ResponseWriter, r *http.Request) {
	var in catalog.Route
	if err := decodeBody(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.admin.CreateRoute(r.Context(), in)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// PostStop handles POST /api/admin/stops.
func (h *Handler) PostStop(w http.ResponseWriter, r *http.Request) {
	var in catalog.Stop
	if err := decodeBody(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.admin.CreateStop(r.Context(), in)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// GetVehiclePositionsFeed handles GET /api/gtfs-rt/vehicle-positions.
func (h *Handler) GetVehiclePositionsFeed(w http.ResponseWriter, r *http.Request) {
	states, err := h.states.ListAll(r.Context(), fleet.MaxSnapshotLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	b, contentType, err := feed.Marshal(feed.VehiclePositions(states, h.now()), r.URL.Query().Get("format") == "json")
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// GetHealth handles GET /api/health and probes the state store.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.states.ListAll(ctx, 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":        false,
			"store":     "unavailable",
			"timestamp": h.now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"message":   "Backend is running",
		"store":     "connected",
		"timestamp": h.now().UTC(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fleet.ErrMissingField),
		errors.Is(err, fleet.ErrInvalidType),
		errors.Is(err, fleet.ErrOutOfRange),
		errors.Is(err, fleet.ErrUnassigned):
		return http.StatusBadRequest
	case errors.Is(err, fleet.ErrNotFound), errors.Is(err, fleet.ErrNoStops):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	kind := fleet.KindOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		if kind == "" {
			kind = fleet.ErrStorage.Error()
		}
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, ErrorKind: kind})
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrDuplicate):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		slog.Error("catalog admin", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", ErrorKind: fleet.ErrStorage.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}
