package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"transit-tracker/internal/fleet"
)

// VehicleStore is the persistent fleet.Store. Each upsert is a single
// INSERT .. ON CONFLICT statement, so a record is replaced atomically.
type VehicleStore struct {
	db *DB
}

func NewVehicleStore(d *DB) *VehicleStore {
	return &VehicleStore{db: d}
}

func (s *VehicleStore) Upsert(ctx context.Context, v fleet.VehicleState) (fleet.VehicleState, error) {
	if v.VehicleID == "" {
		return fleet.VehicleState{}, fmt.Errorf("%w: vehicleId", fleet.ErrMissingField)
	}
	q := s.db.rebind(`
INSERT INTO vehicle_latest (vehicle_id, lat, lng, speed_kmh, route_id, observed_at_ns)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (vehicle_id) DO UPDATE SET
    lat = excluded.lat,
    lng = excluded.lng,
    speed_kmh = excluded.speed_kmh,
    route_id = excluded.route_id,
    observed_at_ns = excluded.observed_at_ns`)
	_, err := s.db.ExecContext(ctx, q, v.VehicleID, v.Position.Lat, v.Position.Lng, v.SpeedKmh, v.RouteID, v.ObservedAt.UnixNano())
	if err != nil {
		return fleet.VehicleState{}, fleet.WrapStorage("upsert", err)
	}
	return v, nil
}

func (s *VehicleStore) Get(ctx context.Context, vehicleID string) (fleet.VehicleState, error) {
	q := s.db.rebind(`
SELECT vehicle_id, lat, lng, speed_kmh, route_id, observed_at_ns
FROM vehicle_latest WHERE vehicle_id = ?`)
	v, err := scanVehicle(s.db.QueryRowContext(ctx, q, vehicleID))
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.VehicleState{}, fmt.Errorf("%w: vehicle %q", fleet.ErrNotFound, vehicleID)
	}
	if err != nil {
		return fleet.VehicleState{}, fleet.WrapStorage("get", err)
	}
	return v, nil
}

func (s *VehicleStore) ListAll(ctx context.Context, limit int) ([]fleet.VehicleState, error) {
	q := s.db.rebind(`
SELECT vehicle_id, lat, lng, speed_kmh, route_id, observed_at_ns
FROM vehicle_latest
ORDER BY observed_at_ns DESC, vehicle_id ASC
LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, q, fleet.ClampLimit(limit))
	if err != nil {
		return nil, fleet.WrapStorage("list", err)
	}
	defer rows.Close()

	out := []fleet.VehicleState{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fleet.WrapStorage("list", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fleet.WrapStorage("list", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVehicle(sc scanner) (fleet.VehicleState, error) {
	var v fleet.VehicleState
	var ns int64
	if err := sc.Scan(&v.VehicleID, &v.Position.Lat, &v.Position.Lng, &v.SpeedKmh, &v.RouteID, &ns); err != nil {
		return fleet.VehicleState{}, err
	}
	v.ObservedAt = time.Unix(0, ns).UTC()
	return v, nil
}
