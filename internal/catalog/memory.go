package catalog

import (
	"context"
	"fmt"
	"sync"
)

// MemoryCatalog is an in-process catalog. Stops are returned in insertion
// order, which is what Index relies on for tie-breaking.
type MemoryCatalog struct {
	mu       sync.RWMutex
	routes   []Route
	routeIDs map[string]struct{}
	stops    []Stop
	stopIDs  map[string]struct{}
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		routeIDs: make(map[string]struct{}),
		stopIDs:  make(map[string]struct{}),
	}
}

func (m *MemoryCatalog) ListRoutes(ctx context.Context) ([]Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Route, len(m.routes))
	copy(out, m.routes)
	return out, nil
}

func (m *MemoryCatalog) ListStops(ctx context.Context, routeID string) ([]Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Stop{}
	for _, s := range m.stops {
		if s.RouteID == routeID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryCatalog) CreateRoute(ctx context.Context, r Route) (Route, error) {
	r, err := NormalizeRoute(r)
	if err != nil {
		return Route{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routeIDs[r.RouteID]; ok {
		return Route{}, fmt.Errorf("%w: route %q", ErrDuplicate, r.RouteID)
	}
	m.routeIDs[r.RouteID] = struct{}{}
	m.routes = append(m.routes, r)
	return r, nil
}

// CreateStop does not require the route to exist.
func (m *MemoryCatalog) CreateStop(ctx context.Context, s Stop) (Stop, error) {
	s, err := NormalizeStop(s)
	if err != nil {
		return Stop{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stopIDs[s.StopID]; ok {
		return Stop{}, fmt.Errorf("%w: stop %q", ErrDuplicate, s.StopID)
	}
	m.stopIDs[s.StopID] = struct{}{}
	m.stops = append(m.stops, s)
	return s, nil
}
