package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps vehicle states in a map guarded by a RWMutex. Records
// are stored and returned by value, so callers never see a partial write.
type MemoryStore struct {
	mu       sync.RWMutex
	vehicles map[string]VehicleState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vehicles: make(map[string]VehicleState)}
}

func (m *MemoryStore) Upsert(ctx context.Context, s VehicleState) (VehicleState, error) {
	if err := ctx.Err(); err != nil {
		return VehicleState{}, WrapStorage("upsert", err)
	}
	if s.VehicleID == "" {
		return VehicleState{}, fmt.Errorf("%w: vehicleId", ErrMissingField)
	}
	m.mu.Lock()
	m.vehicles[s.VehicleID] = s
	m.mu.Unlock()
	return s, nil
}

func (m *MemoryStore) Get(ctx context.Context, vehicleID string) (VehicleState, error) {
	if err := ctx.Err(); err != nil {
		return VehicleState{}, WrapStorage("get", err)
	}
	m.mu.RLock()
	s, ok := m.vehicles[vehicleID]
	m.mu.RUnlock()
	if !ok {
		return VehicleState{}, fmt.Errorf("%w: vehicle %q", ErrNotFound, vehicleID)
	}
	return s, nil
}

// ListAll returns up to limit states, most recently observed first. Ties on
// observedAt are broken by vehicle id so snapshots are stable.
func (m *MemoryStore) ListAll(ctx context.Context, limit int) ([]VehicleState, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapStorage("list", err)
	}
	m.mu.RLock()
	out := make([]VehicleState, 0, len(m.vehicles))
	for _, s := range m.vehicles {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.After(out[j].ObservedAt)
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	if n := ClampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Len returns the number of tracked vehicles.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vehicles)
}
