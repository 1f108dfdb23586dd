package livesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/fleet"
)

// Source is the tracker API as seen by the live map.
type Source interface {
	Live(ctx context.Context, limit int) ([]fleet.VehicleState, error)
	Routes(ctx context.Context) ([]catalog.Route, error)
	Stops(ctx context.Context, routeID string) ([]catalog.Stop, error)
}

type Metrics interface {
	SyncDone(vehicles int, err error)
}

// Broadcaster receives the view whenever it changes.
type Broadcaster interface {
	Broadcast(v View)
}

type Options struct {
	Interval   time.Duration
	StaleAfter time.Duration
	RouteID    string
}

// Syncer polls the snapshot every Interval. Routes are loaded once; stops
// are loaded whenever the selected route changes.
type Syncer struct {
	src     Source
	opts    Options
	metrics Metrics
	out     Broadcaster
	now     func() time.Time

	mu          sync.Mutex
	view        View
	routesReady bool
	stopsFor    string
	stopsReady  bool
	dirty       bool
	last        map[string]Vehicle
}

func NewSyncer(src Source, opts Options, out Broadcaster, metrics Metrics) *Syncer {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 2 * time.Minute
	}
	return &Syncer{
		src:     src,
		opts:    opts,
		metrics: metrics,
		out:     out,
		now:     time.Now,
		view:    View{SelectedRoute: opts.RouteID},
		last:    make(map[string]Vehicle),
	}
}

// SetBroadcaster sets where changed views are pushed. Call before Run.
func (s *Syncer) SetBroadcaster(b Broadcaster) { s.out = b }

// View returns a copy of the current view.
func (s *Syncer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// SelectRoute switches the route whose stops are shown. The stops are
// fetched on the next poll.
func (s *Syncer) SelectRoute(routeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.SelectedRoute == routeID {
		return
	}
	s.view.SelectedRoute = routeID
	s.view.Stops = nil
	s.stopsReady = false
}

func (s *Syncer) Run(ctx context.Context) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Poll(ctx)
			t.Reset(s.opts.Interval)
		}
	}
}

// Poll runs one sync cycle and broadcasts the view if anything changed.
// A failed cycle marks the backend down but keeps the last known vehicles.
func (s *Syncer) Poll(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s.loadCatalog(cctx)

	states, err := s.src.Live(cctx, 0)
	if s.metrics != nil {
		s.metrics.SyncDone(len(states), err)
	}
	s.mu.Lock()
	changed := false
	if err != nil {
		slog.Warn("live sync failed", "error", err)
		changed = s.view.BackendOK || s.view.LastError != err.Error()
		s.view.BackendOK = false
		s.view.LastError = err.Error()
	} else {
		now := s.now().UTC()
		changed = !s.view.BackendOK
		if s.detectChanges(states, now) {
			changed = true
		}
		s.view.BackendOK = true
		s.view.LastError = ""
		s.view.LastSync = now
	}
	if s.catalogDirty() {
		changed = true
	}
	view := s.view.clone()
	s.mu.Unlock()

	if changed && s.out != nil {
		s.out.Broadcast(view)
	}
	return changed
}

// detectChanges rebuilds the vehicle list, keeping snapshot order, and
// reports whether any vehicle moved, appeared, vanished or went stale.
// Caller holds s.mu.
func (s *Syncer) detectChanges(states []fleet.VehicleState, now time.Time) bool {
	changed := len(states) != len(s.last)
	current := make(map[string]Vehicle, len(states))
	list := make([]Vehicle, 0, len(states))
	for _, st := range states {
		v := Vehicle{VehicleState: st, Stale: now.Sub(st.ObservedAt) > s.opts.StaleAfter}
		prev, ok := s.last[st.VehicleID]
		if !ok || prev.Position != v.Position || prev.SpeedKmh != v.SpeedKmh ||
			prev.RouteID != v.RouteID || !prev.ObservedAt.Equal(v.ObservedAt) || prev.Stale != v.Stale {
			changed = true
		}
		current[st.VehicleID] = v
		list = append(list, v)
	}
	s.last = current
	s.view.Vehicles = list
	return changed
}

// catalogDirty is a one-shot flag raised by loadCatalog. Caller holds s.mu.
func (s *Syncer) catalogDirty() bool {
	d := s.dirty
	s.dirty = false
	return d
}

func (s *Syncer) loadCatalog(ctx context.Context) {
	s.mu.Lock()
	needRoutes := !s.routesReady
	route := s.view.SelectedRoute
	needStops := route != "" && (!s.stopsReady || s.stopsFor != route)
	s.mu.Unlock()

	if needRoutes {
		routes, err := s.src.Routes(ctx)
		if err != nil {
			slog.Warn("load routes", "error", err)
		} else {
			s.mu.Lock()
			s.view.Routes = routes
			s.routesReady = true
			s.dirty = true
			s.mu.Unlock()
		}
	}
	if needStops {
		stops, err := s.src.Stops(ctx, route)
		if err != nil {
			slog.Warn("load stops", "route", route, "error", err)
			return
		}
		s.mu.Lock()
		// selection may have moved on while we were fetching
		if s.view.SelectedRoute == route {
			s.view.Stops = stops
			s.stopsFor = route
			s.stopsReady = true
			s.dirty = true
		}
		s.mu.Unlock()
	}
}
