package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/ingest"
)

// Metrics is implemented by metrics.Collector.
type Metrics interface {
	SimVehicleRunning(n int)
	SimReportSent(err error)
}

// RouteSource is where the simulator learns routes and stops, normally the
// tracker API client.
type RouteSource interface {
	Routes(ctx context.Context) ([]catalog.Route, error)
	Stops(ctx context.Context, routeID string) ([]catalog.Stop, error)
}

type Options struct {
	PublishInterval  time.Duration
	RefreshInterval  time.Duration
	SpeedKmh         float64
	SpeedMultiplier  float64
	VehiclesPerRoute int
}

// Manager runs one goroutine per simulated vehicle and picks up new routes
// on every refresh.
type Manager struct {
	source  RouteSource
	sender  Sender
	opts    Options
	metrics Metrics
	now     func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc // vehicleID -> cancel
	wg      sync.WaitGroup

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
}

func NewManager(source RouteSource, sender Sender, opts Options, metrics Metrics) *Manager {
	if opts.PublishInterval <= 0 {
		opts.PublishInterval = time.Second
	}
	if opts.SpeedMultiplier <= 0 {
		opts.SpeedMultiplier = 1
	}
	if opts.VehiclesPerRoute <= 0 {
		opts.VehiclesPerRoute = 1
	}
	return &Manager{
		source:  source,
		sender:  sender,
		opts:    opts,
		metrics: metrics,
		now:     time.Now,
		running: make(map[string]context.CancelFunc),
	}
}

// Start launches the given vehicles; ones already running are skipped.
func (m *Manager) Start(ctx context.Context, plans []Plan) {
	for _, p := range plans {
		m.startVehicle(ctx, p)
	}
}

func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

func (m *Manager) startVehicle(parent context.Context, p Plan) {
	m.mu.Lock()
	if _, exists := m.running[p.VehicleID]; exists {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.running[p.VehicleID] = cancel
	m.wg.Add(1)
	if m.metrics != nil {
		m.metrics.SimVehicleRunning(len(m.running))
	}
	m.mu.Unlock()

	slog.Info("starting vehicle", "vehicle", p.VehicleID, "route", p.RouteID, "length_km", fmt.Sprintf("%.2f", p.LengthKm()))
	go func() {
		defer m.wg.Done()
		if err := m.runVehicle(ctx, p); err != nil && ctx.Err() == nil {
			slog.Error("vehicle stopped", "vehicle", p.VehicleID, "error", err)
		}
		m.mu.Lock()
		delete(m.running, p.VehicleID)
		if m.metrics != nil {
			m.metrics.SimVehicleRunning(len(m.running))
		}
		m.mu.Unlock()
	}()
}

func (m *Manager) runVehicle(ctx context.Context, p Plan) error {
	started := m.now()
	tick := time.NewTicker(m.opts.PublishInterval)
	defer tick.Stop()

	// first fix right away so the vehicle shows up before the first tick
	m.emit(ctx, p, 0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			elapsed := m.now().Sub(started)
			m.emit(ctx, p, m.travelledKm(elapsed))
		}
	}
}

// travelledKm converts wall-clock time into simulated distance.
func (m *Manager) travelledKm(elapsed time.Duration) float64 {
	return elapsed.Hours() * m.opts.SpeedMultiplier * m.opts.SpeedKmh
}

func (m *Manager) emit(ctx context.Context, p Plan, km float64) {
	pos, _ := p.PositionAt(km)
	speed := m.opts.SpeedKmh
	r := ingest.NewReport(p.VehicleID, pos.Lat, pos.Lng, &speed, p.RouteID)
	err := m.sender.Send(ctx, p.VehicleID, r)
	if m.metrics != nil {
		m.metrics.SimReportSent(err)
	}
	if err != nil && ctx.Err() == nil {
		slog.Warn("send report", "vehicle", p.VehicleID, "error", err)
	}
}

func (m *Manager) Stop() {
	if m.refreshCancel != nil {
		m.refreshCancel()
	}
	m.refreshWG.Wait()
	m.mu.Lock()
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// StartRefresher loads routes immediately and then every RefreshInterval,
// starting vehicles for routes that appeared since the last refresh.
func (m *Manager) StartRefresher(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.refreshCancel = cancel
	m.refreshWG.Add(1)
	go func() {
		defer m.refreshWG.Done()
		if err := m.RefreshRoutes(ctx); err != nil {
			slog.Error("refresh routes", "error", err)
		}
		if m.opts.RefreshInterval <= 0 {
			return
		}
		ticker := time.NewTicker(m.opts.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.RefreshRoutes(ctx); err != nil {
					slog.Error("refresh routes", "error", err)
				}
			}
		}
	}()
}

// RefreshRoutes reads the catalog and starts any vehicle not yet running.
func (m *Manager) RefreshRoutes(ctx context.Context) error {
	routes, err := LoadRoutes(ctx, m.source)
	if err != nil {
		return err
	}
	plans := BuildPlans(routes, m.opts.VehiclesPerRoute)
	if len(plans) == 0 {
		slog.Warn("no routes with at least two stops to simulate")
	}
	m.Start(ctx, plans)
	return nil
}

func LoadRoutes(ctx context.Context, src RouteSource) ([]RouteStops, error) {
	routes, err := src.Routes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load routes: %w", err)
	}
	out := make([]RouteStops, 0, len(routes))
	for _, r := range routes {
		stops, err := src.Stops(ctx, r.RouteID)
		if err != nil {
			return nil, fmt.Errorf("load stops for %s: %w", r.RouteID, err)
		}
		out = append(out, RouteStops{Route: r, Stops: stops})
	}
	return out, nil
}
