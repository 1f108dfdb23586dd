package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/fleet"
	"transit-tracker/internal/geo"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open("sqlite://" + filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	ctx := context.Background()
	require.NoError(t, Ping(ctx, d))
	require.NoError(t, EnsureSchema(ctx, d))
	return d
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		in         string
		wantDriver string
		wantSource string
		wantErr    bool
	}{
		{in: "postgres://u:p@localhost:5432/tracker?sslmode=disable", wantDriver: DriverPostgres, wantSource: "postgres://u:p@localhost:5432/tracker?sslmode=disable"},
		{in: "postgresql://localhost/tracker", wantDriver: DriverPostgres, wantSource: "postgresql://localhost/tracker"},
		{in: "sqlite://./data/tracker.db", wantDriver: DriverSQLite, wantSource: "./data/tracker.db"},
		{in: "/var/lib/tracker.db", wantDriver: DriverSQLite, wantSource: "/var/lib/tracker.db"},
		{in: "  ", wantErr: true},
		{in: "sqlite://", wantErr: true},
		{in: "mysql://localhost/x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			driver, source, err := ParseDSN(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestRedactHidesPassword(t *testing.T) {
	assert.Equal(t, "postgres://u:xxxxx@h/db", redact("postgres://u:secret@h/db"))
	assert.Equal(t, "postgres://h/db", redact("postgres://h/db"))
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	lite := &DB{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, EnsureSchema(context.Background(), d))
}

func TestVehicleStore_UpsertGetReplace(t *testing.T) {
	ctx := context.Background()
	s := NewVehicleStore(openTestDB(t))
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 123, time.UTC)

	first := fleet.VehicleState{VehicleID: "BUS-101", Position: geo.Point{Lat: 30.7333, Lng: 76.7794}, SpeedKmh: 22.5, RouteID: "R1", ObservedAt: t0}
	_, err := s.Upsert(ctx, first)
	require.NoError(t, err)

	got, err := s.Get(ctx, "BUS-101")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := fleet.VehicleState{VehicleID: "BUS-101", Position: geo.Point{Lat: 30.74, Lng: 76.78}, ObservedAt: t0.Add(5 * time.Second)}
	_, err = s.Upsert(ctx, second)
	require.NoError(t, err)

	got, err = s.Get(ctx, "BUS-101")
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Equal(t, "", got.RouteID)
	assert.Zero(t, got.SpeedKmh)
}

func TestVehicleStore_GetUnknown(t *testing.T) {
	s := NewVehicleStore(openTestDB(t))
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, fleet.ErrNotFound)
	assert.Equal(t, "NotFound", fleet.KindOf(err))
}

func TestVehicleStore_ListAllOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewVehicleStore(openTestDB(t))

	empty, err := s.ListAll(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"A", "B", "C"} {
		_, err := s.Upsert(ctx, fleet.VehicleState{VehicleID: id, Position: geo.Point{Lat: 1, Lng: 1}, ObservedAt: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	all, err := s.ListAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "C", all[0].VehicleID)
	assert.Equal(t, "A", all[2].VehicleID)

	two, err := s.ListAll(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, []string{"C", "B"}, []string{two[0].VehicleID, two[1].VehicleID})
}

func TestVehicleStore_ConcurrentUpsertsKeepOneRecordPerVehicle(t *testing.T) {
	ctx := context.Background()
	s := NewVehicleStore(openTestDB(t))
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Upsert(ctx, fleet.VehicleState{VehicleID: "BUS-1", Position: geo.Point{Lat: float64(i), Lng: 0}, ObservedAt: t0.Add(time.Duration(i) * time.Second)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := s.ListAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestVehicleStore_ClosedDBIsStorageError(t *testing.T) {
	d := openTestDB(t)
	s := NewVehicleStore(d)
	require.NoError(t, d.Close())

	_, err := s.Upsert(context.Background(), fleet.VehicleState{VehicleID: "X", ObservedAt: time.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, fleet.ErrStorage)
	var se *fleet.StorageError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "upsert", se.Op)

	_, err = s.Get(context.Background(), "X")
	assert.ErrorIs(t, err, fleet.ErrStorage)
}

func TestCatalogStore_CreateAndList(t *testing.T) {
	ctx := context.Background()
	c := NewCatalogStore(openTestDB(t))

	_, err := c.CreateRoute(ctx, catalog.Route{RouteID: "R2", Name: "Sector 17 - PGI"})
	require.NoError(t, err)
	_, err = c.CreateRoute(ctx, catalog.Route{RouteID: " R1 ", Name: "ISBT 43 - Airport", City: "Chandigarh"})
	require.NoError(t, err)

	routes, err := c.ListRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "R1", routes[0].RouteID)
	assert.Equal(t, "Chandigarh", routes[0].City)

	for _, s := range []catalog.Stop{
		{StopID: "S3", RouteID: "R1", NameEN: "Third", Lat: 30.72, Lng: 76.80, Sequence: 3},
		{StopID: "S1", RouteID: "R1", NameEN: "First", NameHI: "पहला", Lat: 30.70, Lng: 76.78, Sequence: 1},
		{StopID: "S2", RouteID: "R1", NameEN: "Second", Lat: 30.71, Lng: 76.79, Sequence: 2},
		{StopID: "X1", RouteID: "R2", NameEN: "Other", Lat: 30.71, Lng: 76.79, Sequence: 1},
	} {
		_, err := c.CreateStop(ctx, s)
		require.NoError(t, err)
	}

	stops, err := c.ListStops(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, stops, 3)
	assert.Equal(t, []string{"S1", "S2", "S3"}, []string{stops[0].StopID, stops[1].StopID, stops[2].StopID})
	assert.Equal(t, "पहला", stops[0].NameHI)

	none, err := c.ListStops(ctx, "R9")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCatalogStore_Duplicates(t *testing.T) {
	ctx := context.Background()
	c := NewCatalogStore(openTestDB(t))

	_, err := c.CreateRoute(ctx, catalog.Route{RouteID: "R1", Name: "A"})
	require.NoError(t, err)
	_, err = c.CreateRoute(ctx, catalog.Route{RouteID: "R1", Name: "B"})
	assert.ErrorIs(t, err, catalog.ErrDuplicate)

	stop := catalog.Stop{StopID: "S1", RouteID: "R1", NameEN: "First", Lat: 1, Lng: 1, Sequence: 1}
	_, err = c.CreateStop(ctx, stop)
	require.NoError(t, err)
	_, err = c.CreateStop(ctx, stop)
	assert.ErrorIs(t, err, catalog.ErrDuplicate)
}

func TestCatalogStore_RejectsInvalid(t *testing.T) {
	c := NewCatalogStore(openTestDB(t))
	_, err := c.CreateStop(context.Background(), catalog.Stop{StopID: "S1", RouteID: "R1", NameEN: "x", Lat: 91, Sequence: 1})
	assert.ErrorIs(t, err, catalog.ErrInvalid)
}

func TestCatalogStore_WorksWithIndex(t *testing.T) {
	ctx := context.Background()
	c := NewCatalogStore(openTestDB(t))
	_, err := c.CreateStop(ctx, catalog.Stop{StopID: "B", RouteID: "R1", NameEN: "b", Lat: 1, Lng: 1, Sequence: 2})
	require.NoError(t, err)
	_, err = c.CreateStop(ctx, catalog.Stop{StopID: "A", RouteID: "R1", NameEN: "a", Lat: 1, Lng: 1, Sequence: 1})
	require.NoError(t, err)

	stops, err := catalog.NewIndex(c).StopsForRoute(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "A", stops[0].StopID)
}

// Runs the same store against a real Postgres when DATABASE_URL points at one.
func TestVehicleStore_Postgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping Postgres integration test")
	}
	d, err := Open(dsn)
	require.NoError(t, err)
	defer d.Close()
	if d.Driver() != DriverPostgres {
		t.Skip("DATABASE_URL is not a Postgres URL")
	}
	ctx := context.Background()
	require.NoError(t, Ping(ctx, d))
	require.NoError(t, EnsureSchema(ctx, d))

	s := NewVehicleStore(d)
	id := "it-" + time.Now().Format("150405.000000")
	in := fleet.VehicleState{VehicleID: id, Position: geo.Point{Lat: 10, Lng: 20}, SpeedKmh: 5, RouteID: "R1", ObservedAt: time.Now().UTC().Truncate(time.Microsecond)}
	_, err = s.Upsert(ctx, in)
	require.NoError(t, err)
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	_, _ = d.ExecContext(ctx, d.rebind(`DELETE FROM vehicle_latest WHERE vehicle_id = ?`), id)
}
