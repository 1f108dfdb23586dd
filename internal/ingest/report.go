package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"transit-tracker/internal/fleet"
	"transit-tracker/internal/geo"
)

// Report is a raw position report as received from a vehicle or simulator.
type Report struct {
	VehicleID Value `json:"vehicleId,omitzero"`
	Latitude  Value `json:"latitude,omitzero"`
	Longitude Value `json:"longitude,omitzero"`
	Speed     Value `json:"speed,omitzero"`
	RouteID   Value `json:"routeId,omitzero"`
}

// NewReport builds a well-typed report. A nil speed leaves the field absent.
func NewReport(vehicleID string, lat, lng float64, speed *float64, routeID string) Report {
	r := Report{
		VehicleID: String(vehicleID),
		Latitude:  Number(lat),
		Longitude: Number(lng),
		RouteID:   String(routeID),
	}
	if speed != nil {
		r.Speed = Number(*speed)
	}
	return r
}

// UnmarshalJSON accepts both the current field names and the legacy
// busId/lat/lng names sent by older drivers and simulators.
func (r *Report) UnmarshalJSON(b []byte) error {
	var w struct {
		VehicleID Value `json:"vehicleId"`
		BusID     Value `json:"busId"`
		Latitude  Value `json:"latitude"`
		Lat       Value `json:"lat"`
		Longitude Value `json:"longitude"`
		Lng       Value `json:"lng"`
		Speed     Value `json:"speed"`
		RouteID   Value `json:"routeId"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Report{
		VehicleID: firstPresent(w.VehicleID, w.BusID),
		Latitude:  firstPresent(w.Latitude, w.Lat),
		Longitude: firstPresent(w.Longitude, w.Lng),
		Speed:     w.Speed,
		RouteID:   w.RouteID,
	}
	return nil
}

func firstPresent(vs ...Value) Value {
	for _, v := range vs {
		if !v.Absent() {
			return v
		}
	}
	return Value{}
}

// Fix is a validated, normalised report ready to be stored.
type Fix struct {
	VehicleID string
	Position  geo.Point
	SpeedKmh  float64
	RouteID   string
}

// Normalize runs the validation pipeline. Steps run in order and the first
// failure wins: vehicle id, coordinate types, coordinate ranges, speed type.
// Negative speeds are clamped to 0 and a non-string route id becomes
// unassigned; neither rejects the report.
func Normalize(r Report) (Fix, error) {
	var f Fix

	if r.VehicleID.Missing() {
		return Fix{}, fmt.Errorf("%w: vehicleId is required", fleet.ErrMissingField)
	}
	id, ok := r.VehicleID.Str()
	if !ok {
		return Fix{}, fmt.Errorf("%w: vehicleId must be a string", fleet.ErrInvalidType)
	}
	f.VehicleID = strings.TrimSpace(id)
	if f.VehicleID == "" {
		return Fix{}, fmt.Errorf("%w: vehicleId is empty", fleet.ErrMissingField)
	}

	lat, latOK := r.Latitude.Float()
	lng, lngOK := r.Longitude.Float()
	if !latOK || !lngOK {
		return Fix{}, fmt.Errorf("%w: latitude and longitude must be finite numbers", fleet.ErrInvalidType)
	}
	f.Position = geo.Point{Lat: lat, Lng: lng}
	if !geo.Valid(f.Position) {
		return Fix{}, fmt.Errorf("%w: lat %v / lng %v", fleet.ErrOutOfRange, lat, lng)
	}

	if !r.Speed.Missing() {
		speed, ok := r.Speed.Float()
		if !ok {
			return Fix{}, fmt.Errorf("%w: speed must be a finite number", fleet.ErrInvalidType)
		}
		if speed > 0 {
			f.SpeedKmh = speed
		}
	}

	if route, ok := r.RouteID.Str(); ok {
		f.RouteID = strings.TrimSpace(route)
	}
	return f, nil
}
