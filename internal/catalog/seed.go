package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk shape of a catalog seed file.
type Seed struct {
	Routes []Route `yaml:"routes"`
	Stops  []Stop  `yaml:"stops"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &s, nil
}

// Apply writes the seed into admin. Records that already exist are skipped so
// the same file can be applied on every start; invalid records abort.
func (s *Seed) Apply(ctx context.Context, admin Admin) (routes, stops int, err error) {
	for _, r := range s.Routes {
		if _, err := admin.CreateRoute(ctx, r); err != nil {
			if errors.Is(err, ErrDuplicate) {
				continue
			}
			return routes, stops, fmt.Errorf("seed route %q: %w", r.RouteID, err)
		}
		routes++
	}
	for _, st := range s.Stops {
		if _, err := admin.CreateStop(ctx, st); err != nil {
			if errors.Is(err, ErrDuplicate) {
				continue
			}
			return routes, stops, fmt.Errorf("seed stop %q: %w", st.StopID, err)
		}
		stops++
	}
	slog.Info("catalog seed applied", "routes", routes, "stops", stops)
	return routes, stops, nil
}
