// Package livesync keeps a local copy of the tracker's live state for map
// clients, refreshed by polling, and pushes it to websocket subscribers.
package livesync

import (
	"time"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/fleet"
)

// Vehicle is a snapshot entry annotated for display.
type Vehicle struct {
	fleet.VehicleState
	// Stale is set once ObservedAt is older than the configured threshold.
	Stale bool `json:"stale"`
}

// View is what a map client renders.
type View struct {
	BackendOK     bool            `json:"backendOk"`
	LastSync      time.Time       `json:"lastSync"`
	LastError     string          `json:"lastError,omitempty"`
	Routes        []catalog.Route `json:"routes"`
	SelectedRoute string          `json:"selectedRoute"`
	Stops         []catalog.Stop  `json:"stops"`
	Vehicles      []Vehicle       `json:"vehicles"`
}

func (v View) clone() View {
	v.Routes = append([]catalog.Route(nil), v.Routes...)
	v.Stops = append([]catalog.Stop(nil), v.Stops...)
	v.Vehicles = append([]Vehicle(nil), v.Vehicles...)
	if v.Routes == nil {
		v.Routes = []catalog.Route{}
	}
	if v.Stops == nil {
		v.Stops = []catalog.Stop{}
	}
	if v.Vehicles == nil {
		v.Vehicles = []Vehicle{}
	}
	return v
}
