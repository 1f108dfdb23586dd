package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/fleet"
	"transit-tracker/internal/geo"
	"transit-tracker/internal/ingest"
)

func TestClient_ReadEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/routes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]catalog.Route{{RouteID: "R1", Name: "One"}})
	})
	mux.HandleFunc("/api/routes/R1/stops", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]catalog.Stop{{StopID: "S1", RouteID: "R1", Sequence: 1}})
	})
	mux.HandleFunc("/api/buses/live", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]fleet.VehicleState{{VehicleID: "BUS-1", Position: geo.Point{Lat: 1, Lng: 2}, ObservedAt: time.Unix(10, 0).UTC()}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL+"/", srv.Client())
	ctx := context.Background()

	routes, err := c.Routes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "R1", routes[0].RouteID)

	stops, err := c.Stops(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, "S1", stops[0].StopID)

	live, err := c.Live(ctx, 5)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, 2.0, live[0].Position.Lng)
}

func TestClient_Report(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/gps/update", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got["vehicleId"] == "BAD" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(ingest.Outcome{ErrorKind: "OutOfRange", Error: "latitude out of range"})
			return
		}
		st := fleet.VehicleState{VehicleID: "BUS-1"}
		_ = json.NewEncoder(w).Encode(ingest.Outcome{Accepted: true, State: &st})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	speed := 20.0
	out, err := c.Report(context.Background(), ingest.NewReport("BUS-1", 30.7, 76.7, &speed, "R1"))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, "BUS-1", got["vehicleId"])
	assert.Equal(t, 20.0, got["speed"])

	_, err = c.Report(context.Background(), ingest.NewReport("BAD", 91, 0, nil, ""))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "OutOfRange", se.Kind)
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error":"internal server error","errorKind":"StorageError"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).Live(context.Background(), 0)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.Code)
	assert.Equal(t, "StorageError", se.Kind)
	assert.Contains(t, se.Error(), "internal server error")
}
