package ingest

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"transit-tracker/internal/fleet"
)

// Observer receives the outcome of every report. Implemented by the metrics
// collector.
type Observer interface {
	ReportAccepted(storeLatency time.Duration)
	ReportRejected(kind string)
}

// Sink is notified after a state has been stored, e.g. to fan it out over
// NATS. Sinks must not block for long and handle their own errors.
type Sink interface {
	StateAccepted(ctx context.Context, s fleet.VehicleState)
}

type Gateway struct {
	store    fleet.Store
	now      func() time.Time
	observer Observer
	sinks    []Sink
	tracer   trace.Tracer
}

type Option func(*Gateway)

// WithClock overrides the server clock used for observedAt.
func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

func WithObserver(o Observer) Option { return func(g *Gateway) { g.observer = o } }

func WithSink(s Sink) Option { return func(g *Gateway) { g.sinks = append(g.sinks, s) } }

func NewGateway(store fleet.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:  store,
		now:    time.Now,
		tracer: otel.Tracer("transit-tracker/ingest"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Report validates r and, if accepted, replaces the vehicle's state with a
// server-stamped record. Rejected reports never touch the store.
func (g *Gateway) Report(ctx context.Context, r Report) (fleet.VehicleState, error) {
	ctx, span := g.tracer.Start(ctx, "ingest.Report")
	defer span.End()

	fix, err := Normalize(r)
	if err != nil {
		g.reject(span, err)
		return fleet.VehicleState{}, err
	}
	span.SetAttributes(attribute.String("vehicle.id", fix.VehicleID), attribute.String("route.id", fix.RouteID))

	state := fleet.VehicleState{
		VehicleID:  fix.VehicleID,
		Position:   fix.Position,
		SpeedKmh:   fix.SpeedKmh,
		RouteID:    fix.RouteID,
		ObservedAt: g.now().UTC(),
	}
	start := time.Now()
	stored, err := g.store.Upsert(ctx, state)
	if err != nil {
		err = fleet.WrapStorage("upsert", err)
		g.reject(span, err)
		slog.Error("store vehicle state", "vehicle", fix.VehicleID, "error", err)
		return fleet.VehicleState{}, err
	}
	if g.observer != nil {
		g.observer.ReportAccepted(time.Since(start))
	}
	for _, s := range g.sinks {
		s.StateAccepted(ctx, stored)
	}
	slog.Debug("report accepted", "vehicle", stored.VehicleID, "route", stored.RouteID, "speed", stored.SpeedKmh)
	return stored, nil
}

func (g *Gateway) reject(span trace.Span, err error) {
	kind := fleet.KindOf(err)
	span.SetStatus(codes.Error, kind)
	span.RecordError(err)
	if g.observer != nil {
		g.observer.ReportRejected(kind)
	}
}
