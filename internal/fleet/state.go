package fleet

import (
	"context"
	"time"

	"transit-tracker/internal/geo"
)

const (
	// DefaultSnapshotLimit bounds ListAll when the caller passes no limit.
	DefaultSnapshotLimit = 200
	// MaxSnapshotLimit is the hard cap on a single snapshot.
	MaxSnapshotLimit = 1000
)

// VehicleState is the latest accepted fix for one vehicle.
type VehicleState struct {
	VehicleID  string    `json:"vehicleId"`
	Position   geo.Point `json:"position"`
	SpeedKmh   float64   `json:"speed"`
	RouteID    string    `json:"routeId"`
	ObservedAt time.Time `json:"observedAt"`
}

// Assigned reports whether the vehicle is bound to a route.
func (s VehicleState) Assigned() bool { return s.RouteID != "" }

// Store is the latest-position table. Upsert replaces the whole record for
// the vehicle; there is no merge and no history.
type Store interface {
	Upsert(ctx context.Context, s VehicleState) (VehicleState, error)
	Get(ctx context.Context, vehicleID string) (VehicleState, error)
	ListAll(ctx context.Context, limit int) ([]VehicleState, error)
}

// ClampLimit maps a caller supplied snapshot size onto (0, MaxSnapshotLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSnapshotLimit
	}
	if limit > MaxSnapshotLimit {
		return MaxSnapshotLimit
	}
	return limit
}
