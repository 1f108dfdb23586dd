package sim

import (
	"fmt"
	"math"
	"sort"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/geo"
)

// RouteStops is a route together with its stops.
type RouteStops struct {
	Route catalog.Route
	Stops []catalog.Stop
}

// Plan describes one simulated vehicle shuttling along a stop polyline.
type Plan struct {
	VehicleID string
	RouteID   string
	Path      []geo.Point
	// StartKm is the distance already travelled on the round trip when the
	// vehicle starts, so vehicles on the same route are spread out.
	StartKm float64

	cum []float64
}

// LengthKm is the one-way length of the path.
func (p Plan) LengthKm() float64 {
	if len(p.cum) == 0 {
		return 0
	}
	return p.cum[len(p.cum)-1]
}

// BuildPlans creates perRoute vehicles for every route with at least two
// distinct stop positions. Stops are ordered by sequence.
func BuildPlans(routes []RouteStops, perRoute int) []Plan {
	var plans []Plan
	for _, rs := range routes {
		stops := append([]catalog.Stop(nil), rs.Stops...)
		sort.SliceStable(stops, func(a, b int) bool { return stops[a].Sequence < stops[b].Sequence })
		path := make([]geo.Point, 0, len(stops))
		for _, s := range stops {
			path = append(path, s.Point())
		}
		cum := geo.CumulativeKm(path)
		if len(cum) < 2 || cum[len(cum)-1] == 0 {
			continue
		}
		total := cum[len(cum)-1]
		for i := 0; i < perRoute; i++ {
			plans = append(plans, Plan{
				VehicleID: fmt.Sprintf("SIM-%s-%02d", rs.Route.RouteID, i+1),
				RouteID:   rs.Route.RouteID,
				Path:      path,
				StartKm:   2 * total * float64(i) / float64(perRoute),
				cum:       cum,
			})
		}
	}
	return plans
}

// PositionAt returns where the vehicle is after travelling km (on top of
// StartKm). Vehicles run to the last stop and back, forever.
func (p Plan) PositionAt(km float64) (geo.Point, float64) {
	total := p.LengthKm()
	if total == 0 {
		if len(p.Path) == 0 {
			return geo.Point{}, 0
		}
		return p.Path[0], 0
	}
	d := math.Mod(p.StartKm+km, 2*total)
	if d < 0 {
		d += 2 * total
	}
	if d <= total {
		return geo.Interpolate(p.Path, p.cum, d)
	}
	pos, bearing := geo.Interpolate(p.Path, p.cum, 2*total-d)
	return pos, math.Mod(bearing+180, 360)
}
