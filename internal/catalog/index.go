package catalog

import (
	"context"
	"fmt"
	"sort"
)

// Index orders a route's stops for consumers. It reads through to the
// catalog on every call; nothing is cached.
type Index struct {
	cat Catalog
}

func NewIndex(cat Catalog) *Index {
	return &Index{cat: cat}
}

// StopsForRoute returns the route's stops by ascending sequence. Duplicate
// sequence values keep the catalog's order. An empty slice is not an error.
func (i *Index) StopsForRoute(ctx context.Context, routeID string) ([]Stop, error) {
	stops, err := i.cat.ListStops(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("list stops for %q: %w", routeID, err)
	}
	out := make([]Stop, len(stops))
	copy(out, stops)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Sequence < out[b].Sequence })
	return out, nil
}

// Routes returns every route ordered by id.
func (i *Index) Routes(ctx context.Context) ([]Route, error) {
	routes, err := i.cat.ListRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	out := make([]Route, len(routes))
	copy(out, routes)
	sort.SliceStable(out, func(a, b int) bool { return out[a].RouteID < out[b].RouteID })
	return out, nil
}
