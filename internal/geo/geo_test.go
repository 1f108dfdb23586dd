package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKm_Identity(t *testing.T) {
	points := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 30.7333, Lng: 76.7794},
		{Lat: -89.9, Lng: 179.9},
		{Lat: 90, Lng: -180},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, DistanceKm(p, p), "point %v", p)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	pairs := [][2]Point{
		{{Lat: 30.7333, Lng: 76.7794}, {Lat: 30.7046, Lng: 76.7179}},
		{{Lat: 41.3874, Lng: 2.1686}, {Lat: 40.4168, Lng: -3.7038}},
		{{Lat: -33.86, Lng: 151.2}, {Lat: 51.5, Lng: -0.12}},
	}
	for _, p := range pairs {
		assert.InDelta(t, DistanceKm(p[0], p[1]), DistanceKm(p[1], p[0]), 1e-9)
	}
}

func TestDistanceKm_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
		tol  float64
	}{
		{"one degree of latitude", Point{0, 0}, Point{1, 0}, 111.195, 0.01},
		{"barcelona to madrid", Point{41.3874, 2.1686}, Point{40.4168, -3.7038}, 505, 5},
		{"antipodes", Point{0, 0}, Point{0, 180}, 20015.09, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceKm(tt.a, tt.b), tt.tol)
		})
	}
}

func TestDestination_RoundTripsDistance(t *testing.T) {
	origin := Point{Lat: 30.7333, Lng: 76.7794}
	for _, km := range []float64{0.5, 2, 5, 9} {
		for _, brng := range []float64{0, 45, 90, 200} {
			p := Destination(origin, brng, km)
			assert.InDelta(t, km, DistanceKm(origin, p), 1e-6, "km=%v bearing=%v", km, brng)
		}
	}
}

func TestBearingDeg(t *testing.T) {
	o := Point{Lat: 10, Lng: 10}
	assert.InDelta(t, 0, BearingDeg(o, Point{Lat: 11, Lng: 10}), 1e-9)
	assert.InDelta(t, 180, BearingDeg(o, Point{Lat: 9, Lng: 10}), 1e-9)
	assert.InDelta(t, 90, BearingDeg(o, Point{Lat: 10, Lng: 11}), 0.2)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Point{Lat: 90, Lng: 180}))
	assert.True(t, Valid(Point{Lat: -90, Lng: -180}))
	assert.False(t, Valid(Point{Lat: 90.0001, Lng: 0}))
	assert.False(t, Valid(Point{Lat: 0, Lng: -180.5}))
}

func TestInterpolate(t *testing.T) {
	path := []Point{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 0}, {Lat: 2, Lng: 0}}
	cum := CumulativeKm(path)
	require.Len(t, cum, 3)
	assert.Equal(t, 0.0, cum[0])
	assert.InDelta(t, 2*cum[1], cum[2], 1e-9)

	p, brng := Interpolate(path, cum, cum[1]/2)
	assert.InDelta(t, 0.5, p.Lat, 1e-9)
	assert.InDelta(t, 0, brng, 1e-9)

	start, _ := Interpolate(path, cum, -5)
	assert.Equal(t, path[0], start)
	end, _ := Interpolate(path, cum, cum[2]+10)
	assert.Equal(t, path[2], end)

	empty, _ := Interpolate(nil, nil, 1)
	assert.Equal(t, Point{}, empty)
}
