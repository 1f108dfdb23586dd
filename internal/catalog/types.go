package catalog

import (
	"context"
	"errors"

	"transit-tracker/internal/geo"
)

var (
	// ErrDuplicate is returned when a route or stop id already exists.
	ErrDuplicate = errors.New("duplicate id")
	// ErrInvalid is returned when an admin payload fails validation.
	ErrInvalid = errors.New("invalid catalog record")
)

type Route struct {
	RouteID string `json:"routeId" yaml:"routeId" validate:"required"`
	Name    string `json:"name" yaml:"name" validate:"required"`
	City    string `json:"city" yaml:"city"`
}

type Stop struct {
	StopID   string  `json:"stopId" yaml:"stopId" validate:"required"`
	RouteID  string  `json:"routeId" yaml:"routeId" validate:"required"`
	NameEN   string  `json:"name_en" yaml:"name_en" validate:"required"`
	NameHI   string  `json:"name_hi" yaml:"name_hi"`
	NamePA   string  `json:"name_pa" yaml:"name_pa"`
	Lat      float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lng      float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
	Sequence int     `json:"sequence" yaml:"sequence" validate:"gte=1"`
}

func (s Stop) Point() geo.Point { return geo.Point{Lat: s.Lat, Lng: s.Lng} }

// Catalog is the read side of the route/stop catalog. Implementations may
// return stops in any order; Index imposes the sequence ordering.
type Catalog interface {
	ListRoutes(ctx context.Context) ([]Route, error)
	ListStops(ctx context.Context, routeID string) ([]Stop, error)
}

// Admin is the write side used by the admin endpoints and the seed loader.
type Admin interface {
	CreateRoute(ctx context.Context, r Route) (Route, error)
	CreateStop(ctx context.Context, s Stop) (Stop, error)
}
