package eta

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/fleet"
	"transit-tracker/internal/geo"
)

const (
	DefaultNearestCount = 3
	// DefaultMinSpeedKmh is the assumed cruising speed for stationary or
	// crawling vehicles. It only affects the projection, never the store.
	DefaultMinSpeedKmh = 12.0
)

// StateReader is the slice of fleet.Store the estimator needs.
type StateReader interface {
	Get(ctx context.Context, vehicleID string) (fleet.VehicleState, error)
}

// StopIndex yields a route's stops in sequence order.
type StopIndex interface {
	StopsForRoute(ctx context.Context, routeID string) ([]catalog.Stop, error)
}

// Observer receives the outcome of every estimate.
type Observer interface {
	EstimateDone(outcome string, d time.Duration)
}

type Options struct {
	NearestCount int
	MinSpeedKmh  float64
}

func (o Options) withDefaults() Options {
	if o.NearestCount <= 0 {
		o.NearestCount = DefaultNearestCount
	}
	if o.MinSpeedKmh <= 0 || math.IsNaN(o.MinSpeedKmh) || math.IsInf(o.MinSpeedKmh, 0) {
		o.MinSpeedKmh = DefaultMinSpeedKmh
	}
	return o
}

type StopETA struct {
	StopID     string  `json:"stopId"`
	RouteID    string  `json:"routeId"`
	NameEN     string  `json:"name_en"`
	NameHI     string  `json:"name_hi"`
	NamePA     string  `json:"name_pa"`
	Sequence   int     `json:"sequence"`
	DistanceKm float64 `json:"distanceKm"`
	ETAMinutes float64 `json:"etaMinutes"`
}

type Result struct {
	VehicleID         string    `json:"vehicleId"`
	RouteID           string    `json:"routeId"`
	EffectiveSpeedKmh float64   `json:"effectiveSpeedKmh"`
	NextStops         []StopETA `json:"nextStops"`
	CalculatedAt      time.Time `json:"calculatedAt"`
}

type Estimator struct {
	states   StateReader
	stops    StopIndex
	defaults Options
	now      func() time.Time
	observer Observer
	tracer   trace.Tracer
}

type Option func(*Estimator)

func WithClock(now func() time.Time) Option { return func(e *Estimator) { e.now = now } }

func WithObserver(o Observer) Option { return func(e *Estimator) { e.observer = o } }

// WithDefaults sets the options used when a caller leaves fields zero.
func WithDefaults(o Options) Option { return func(e *Estimator) { e.defaults = o.withDefaults() } }

func NewEstimator(states StateReader, stops StopIndex, opts ...Option) *Estimator {
	e := &Estimator{
		states:   states,
		stops:    stops,
		defaults: Options{}.withDefaults(),
		now:      time.Now,
		tracer:   otel.Tracer("transit-tracker/eta"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Estimate projects the vehicle onto the nearest stops of its route by
// straight-line distance. Direction of travel is not considered, so a stop
// already passed can be returned.
func (e *Estimator) Estimate(ctx context.Context, vehicleID string, opts Options) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "eta.Estimate", trace.WithAttributes(attribute.String("vehicle.id", vehicleID)))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = fleet.KindOf(err)
			if outcome == "" {
				outcome = "error"
			}
			span.SetStatus(codes.Error, outcome)
			span.RecordError(err)
		}
		if e.observer != nil {
			e.observer.EstimateDone(outcome, time.Since(start))
		}
		span.End()
	}()

	if opts.NearestCount <= 0 {
		opts.NearestCount = e.defaults.NearestCount
	}
	if opts.MinSpeedKmh <= 0 {
		opts.MinSpeedKmh = e.defaults.MinSpeedKmh
	}
	opts = opts.withDefaults()

	state, err := e.states.Get(ctx, vehicleID)
	if err != nil {
		return Result{}, fleet.WrapStorage("get", err)
	}
	if !state.Assigned() {
		return Result{}, fmt.Errorf("%w: vehicle %q has no route", fleet.ErrUnassigned, vehicleID)
	}
	span.SetAttributes(attribute.String("route.id", state.RouteID))

	stops, err := e.stops.StopsForRoute(ctx, state.RouteID)
	if err != nil {
		return Result{}, fleet.WrapStorage("stops", err)
	}
	if len(stops) == 0 {
		return Result{}, fmt.Errorf("%w: route %q", fleet.ErrNoStops, state.RouteID)
	}

	speed := math.Max(state.SpeedKmh, opts.MinSpeedKmh)
	return Result{
		VehicleID:         state.VehicleID,
		RouteID:           state.RouteID,
		EffectiveSpeedKmh: speed,
		NextStops:         Project(state.Position, stops, opts.NearestCount, speed),
		CalculatedAt:      e.now().UTC(),
	}, nil
}

type ranked struct {
	stop catalog.Stop
	km   float64
}

// Project ranks stops by distance from pos and returns the nearest n with
// arrival times at speedKmh. stops are expected in sequence order; equal
// distances keep that order.
func Project(pos geo.Point, stops []catalog.Stop, n int, speedKmh float64) []StopETA {
	all := make([]ranked, len(stops))
	for i, s := range stops {
		all[i] = ranked{stop: s, km: geo.DistanceKm(pos, s.Point())}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].km < all[b].km })
	if n > len(all) {
		n = len(all)
	}

	out := make([]StopETA, 0, n)
	for _, r := range all[:n] {
		out = append(out, StopETA{
			StopID:     r.stop.StopID,
			RouteID:    r.stop.RouteID,
			NameEN:     r.stop.NameEN,
			NameHI:     r.stop.NameHI,
			NamePA:     r.stop.NamePA,
			Sequence:   r.stop.Sequence,
			DistanceKm: round2(r.km),
			ETAMinutes: r.km / speedKmh * 60,
		})
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
