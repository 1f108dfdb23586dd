package eta

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/fleet"
	"transit-tracker/internal/geo"
)

var origin = geo.Point{Lat: 30.7333, Lng: 76.7794}

var calcTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *fleet.MemoryStore
	cat   *catalog.MemoryCatalog
	est   *Estimator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{store: fleet.NewMemoryStore(), cat: catalog.NewMemoryCatalog()}
	opts = append([]Option{WithClock(func() time.Time { return calcTime })}, opts...)
	f.est = NewEstimator(f.store, catalog.NewIndex(f.cat), opts...)
	return f
}

func (f *fixture) vehicle(t *testing.T, id, route string, speed float64) {
	t.Helper()
	_, err := f.store.Upsert(context.Background(), fleet.VehicleState{VehicleID: id, Position: origin, SpeedKmh: speed, RouteID: route, ObservedAt: calcTime})
	require.NoError(t, err)
}

// stopAt places a stop km north of origin.
func (f *fixture) stopAt(t *testing.T, id, route string, seq int, km float64) {
	t.Helper()
	p := geo.Destination(origin, 0, km)
	_, err := f.cat.CreateStop(context.Background(), catalog.Stop{StopID: id, RouteID: route, NameEN: id, Lat: p.Lat, Lng: p.Lng, Sequence: seq})
	require.NoError(t, err)
}

func TestEstimate_Bus101Scenario(t *testing.T) {
	f := newFixture(t)
	f.vehicle(t, "BUS-101", "R1", 0)
	// inserted out of sequence; the index sorts them
	f.stopAt(t, "S4", "R1", 4, 9.0)
	f.stopAt(t, "S2", "R1", 2, 2.0)
	f.stopAt(t, "S1", "R1", 1, 0.5)
	f.stopAt(t, "S3", "R1", 3, 5.0)

	res, err := f.est.Estimate(context.Background(), "BUS-101", Options{NearestCount: 3})
	require.NoError(t, err)

	assert.Equal(t, "BUS-101", res.VehicleID)
	assert.Equal(t, "R1", res.RouteID)
	assert.Equal(t, 12.0, res.EffectiveSpeedKmh)
	assert.Equal(t, calcTime, res.CalculatedAt)
	require.Len(t, res.NextStops, 3)

	wantIDs := []string{"S1", "S2", "S3"}
	wantKm := []float64{0.5, 2.0, 5.0}
	wantETA := []float64{2.5, 10.0, 25.0}
	for i, s := range res.NextStops {
		assert.Equal(t, wantIDs[i], s.StopID)
		assert.Equal(t, wantKm[i], s.DistanceKm)
		assert.InDelta(t, wantETA[i], s.ETAMinutes, 1e-6)
		assert.Equal(t, i+1, s.Sequence)
	}
}

func TestEstimate_Errors(t *testing.T) {
	f := newFixture(t)
	f.vehicle(t, "BUS-NOROUTE", "", 30)
	f.vehicle(t, "BUS-EMPTY", "R-EMPTY", 30)

	tests := []struct {
		vehicle string
		kind    error
	}{
		{"BUS-UNKNOWN", fleet.ErrNotFound},
		{"BUS-NOROUTE", fleet.ErrUnassigned},
		{"BUS-EMPTY", fleet.ErrNoStops},
	}
	for _, tt := range tests {
		t.Run(tt.vehicle, func(t *testing.T) {
			_, err := f.est.Estimate(context.Background(), tt.vehicle, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			for _, other := range []error{fleet.ErrNotFound, fleet.ErrUnassigned, fleet.ErrNoStops} {
				if other != tt.kind {
					assert.NotErrorIs(t, err, other)
				}
			}
		})
	}
}

func TestEstimate_SpeedFloorAndPassThrough(t *testing.T) {
	f := newFixture(t)
	f.stopAt(t, "S1", "R1", 1, 3)
	f.vehicle(t, "SLOW", "R1", 4)
	f.vehicle(t, "FAST", "R1", 36)

	slow, err := f.est.Estimate(context.Background(), "SLOW", Options{MinSpeedKmh: 12})
	require.NoError(t, err)
	assert.Equal(t, 12.0, slow.EffectiveSpeedKmh)
	assert.InDelta(t, 15.0, slow.NextStops[0].ETAMinutes, 1e-6)

	fast, err := f.est.Estimate(context.Background(), "FAST", Options{})
	require.NoError(t, err)
	assert.Equal(t, 36.0, fast.EffectiveSpeedKmh)
	assert.InDelta(t, 5.0, fast.NextStops[0].ETAMinutes, 1e-6)

	// the stored speed is untouched by the floor
	st, err := f.store.Get(context.Background(), "SLOW")
	require.NoError(t, err)
	assert.Equal(t, 4.0, st.SpeedKmh)
}

func TestEstimate_ZeroOptionsUseDefaults(t *testing.T) {
	f := newFixture(t)
	f.vehicle(t, "B", "R1", 0)
	for i := 1; i <= 6; i++ {
		f.stopAt(t, fmt.Sprintf("S%d", i), "R1", i, float64(i))
	}
	res, err := f.est.Estimate(context.Background(), "B", Options{NearestCount: -1, MinSpeedKmh: 0})
	require.NoError(t, err)
	assert.Len(t, res.NextStops, DefaultNearestCount)
	assert.Equal(t, DefaultMinSpeedKmh, res.EffectiveSpeedKmh)
}

func TestEstimate_ConfiguredDefaults(t *testing.T) {
	f := newFixture(t, WithDefaults(Options{NearestCount: 5, MinSpeedKmh: 20}))
	f.vehicle(t, "B", "R1", 0)
	for i := 1; i <= 6; i++ {
		f.stopAt(t, fmt.Sprintf("S%d", i), "R1", i, float64(i))
	}
	res, err := f.est.Estimate(context.Background(), "B", Options{})
	require.NoError(t, err)
	assert.Len(t, res.NextStops, 5)
	assert.Equal(t, 20.0, res.EffectiveSpeedKmh)
}

func TestEstimate_NearestCountLargerThanRoute(t *testing.T) {
	f := newFixture(t)
	f.vehicle(t, "B", "R1", 0)
	f.stopAt(t, "S1", "R1", 1, 1)
	f.stopAt(t, "S2", "R1", 2, 2)
	res, err := f.est.Estimate(context.Background(), "B", Options{NearestCount: 10})
	require.NoError(t, err)
	assert.Len(t, res.NextStops, 2)
}

func TestEstimate_SortedAscendingRegardlessOfSequence(t *testing.T) {
	f := newFixture(t)
	f.vehicle(t, "B", "R1", 25)
	// the vehicle sits between stops; the nearest one is behind in sequence
	kms := []float64{7.2, 0.3, 4.4, 1.1, 9.9, 2.5}
	for i, km := range kms {
		f.stopAt(t, fmt.Sprintf("S%d", i+1), "R1", i+1, km)
	}
	res, err := f.est.Estimate(context.Background(), "B", Options{NearestCount: len(kms)})
	require.NoError(t, err)
	require.Len(t, res.NextStops, len(kms))
	for i := 1; i < len(res.NextStops); i++ {
		assert.LessOrEqual(t, res.NextStops[i-1].DistanceKm, res.NextStops[i].DistanceKm)
	}
	assert.Equal(t, "S2", res.NextStops[0].StopID)
	assert.Equal(t, 0.3, res.NextStops[0].DistanceKm)
}

func TestProject_EqualDistancesKeepSequenceOrder(t *testing.T) {
	p := geo.Destination(origin, 90, 1)
	stops := []catalog.Stop{
		{StopID: "A", Sequence: 1, Lat: p.Lat, Lng: p.Lng},
		{StopID: "B", Sequence: 2, Lat: p.Lat, Lng: p.Lng},
		{StopID: "C", Sequence: 3, Lat: p.Lat, Lng: p.Lng},
	}
	out := Project(origin, stops, 3, 12)
	require.Len(t, out, 3)
	assert.Equal(t, "A", out[0].StopID)
	assert.Equal(t, "B", out[1].StopID)
	assert.Equal(t, "C", out[2].StopID)
}

func TestProject_RoundsDistanceNotETA(t *testing.T) {
	stopPt := geo.Destination(origin, 0, 1.23456)
	out := Project(origin, []catalog.Stop{{StopID: "S", Lat: stopPt.Lat, Lng: stopPt.Lng}}, 1, 12)
	require.Len(t, out, 1)
	assert.Equal(t, 1.23, out[0].DistanceKm)
	assert.InDelta(t, 1.23456/12*60, out[0].ETAMinutes, 1e-6)
}

type failingStops struct{}

func (failingStops) StopsForRoute(context.Context, string) ([]catalog.Stop, error) {
	return nil, errors.New("catalog unavailable")
}

type recordingObserver struct{ outcomes []string }

func (o *recordingObserver) EstimateDone(outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func TestEstimate_CatalogFailureIsStorageError(t *testing.T) {
	store := fleet.NewMemoryStore()
	_, err := store.Upsert(context.Background(), fleet.VehicleState{VehicleID: "B", RouteID: "R1"})
	require.NoError(t, err)
	obs := &recordingObserver{}
	est := NewEstimator(store, failingStops{}, WithObserver(obs))

	_, err = est.Estimate(context.Background(), "B", Options{})
	require.Error(t, err)
	assert.Equal(t, "StorageError", fleet.KindOf(err))
	assert.Equal(t, []string{"StorageError"}, obs.outcomes)
}

func TestEstimate_ObserverOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	f := newFixture(t, WithObserver(obs))
	f.vehicle(t, "B", "R1", 0)
	f.stopAt(t, "S1", "R1", 1, 1)

	_, err := f.est.Estimate(context.Background(), "B", Options{})
	require.NoError(t, err)
	_, err = f.est.Estimate(context.Background(), "missing", Options{})
	require.Error(t, err)
	assert.Equal(t, []string{"ok", "NotFound"}, obs.outcomes)
}
