package db

import (
	"context"
	"fmt"

	"transit-tracker/internal/catalog"
)

// CatalogStore serves routes and stops from the routes / stops tables and
// implements both catalog.Catalog and catalog.Admin.
type CatalogStore struct {
	db *DB
}

func NewCatalogStore(d *DB) *CatalogStore {
	return &CatalogStore{db: d}
}

func (c *CatalogStore) ListRoutes(ctx context.Context) ([]catalog.Route, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT route_id, name, city FROM routes ORDER BY route_id`)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()
	out := []catalog.Route{}
	for rows.Next() {
		var r catalog.Route
		if err := rows.Scan(&r.RouteID, &r.Name, &r.City); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListStops returns the route's stops by sequence; ties come back by stop id.
func (c *CatalogStore) ListStops(ctx context.Context, routeID string) ([]catalog.Stop, error) {
	q := c.db.rebind(`
SELECT stop_id, route_id, name_en, name_hi, name_pa, lat, lng, sequence
FROM stops WHERE route_id = ?
ORDER BY sequence, stop_id`)
	rows, err := c.db.QueryContext(ctx, q, routeID)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	out := []catalog.Stop{}
	for rows.Next() {
		var s catalog.Stop
		if err := rows.Scan(&s.StopID, &s.RouteID, &s.NameEN, &s.NameHI, &s.NamePA, &s.Lat, &s.Lng, &s.Sequence); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *CatalogStore) CreateRoute(ctx context.Context, r catalog.Route) (catalog.Route, error) {
	r, err := catalog.NormalizeRoute(r)
	if err != nil {
		return catalog.Route{}, err
	}
	q := c.db.rebind(`INSERT INTO routes (route_id, name, city) VALUES (?, ?, ?) ON CONFLICT (route_id) DO NOTHING`)
	res, err := c.db.ExecContext(ctx, q, r.RouteID, r.Name, r.City)
	if err != nil {
		return catalog.Route{}, fmt.Errorf("insert route: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return catalog.Route{}, fmt.Errorf("%w: route %q", catalog.ErrDuplicate, r.RouteID)
	}
	return r, nil
}

func (c *CatalogStore) CreateStop(ctx context.Context, s catalog.Stop) (catalog.Stop, error) {
	s, err := catalog.NormalizeStop(s)
	if err != nil {
		return catalog.Stop{}, err
	}
	q := c.db.rebind(`
INSERT INTO stops (stop_id, route_id, name_en, name_hi, name_pa, lat, lng, sequence)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (stop_id) DO NOTHING`)
	res, err := c.db.ExecContext(ctx, q, s.StopID, s.RouteID, s.NameEN, s.NameHI, s.NamePA, s.Lat, s.Lng, s.Sequence)
	if err != nil {
		return catalog.Stop{}, fmt.Errorf("insert stop: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return catalog.Stop{}, fmt.Errorf("%w: stop %q", catalog.ErrDuplicate, s.StopID)
	}
	return s, nil
}
