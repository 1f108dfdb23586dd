package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Simulator configures cmd/simulator.
type Simulator struct {
	TrackerURL       string        `validate:"required,url"`
	Transport        string        `validate:"oneof=http nats"`
	PublishInterval  time.Duration `validate:"gt=0"`
	SpeedMultiplier  float64       `validate:"gt=0"`
	SpeedKmh         float64       `validate:"gt=0"`
	VehiclesPerRoute int           `validate:"gt=0"`
	MetricsAddr      string

	NATS NATSConfig
}

func LoadSimulator() (*Simulator, error) {
	_ = godotenv.Load()

	cfg := &Simulator{
		TrackerURL: strings.TrimRight(os.Getenv("TRACKER_URL"), "/"),
		Transport:  strings.ToLower(getenvDefault("SIM_TRANSPORT", "http")),
		NATS:       loadNATS(),
	}
	if cfg.TrackerURL == "" {
		return nil, errNoTracker
	}

	// Publish interval
	if v := os.Getenv("PUBLISH_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid PUBLISH_INTERVAL_MS: %q", v)
		}
		cfg.PublishInterval = time.Duration(ms) * time.Millisecond
	} else {
		cfg.PublishInterval = time.Second
	}

	var err error
	if cfg.SpeedMultiplier, err = floatEnv("SPEED_MULTIPLIER", 1.0); err != nil {
		return nil, err
	}
	if cfg.SpeedKmh, err = floatEnv("SIM_SPEED_KMH", 25); err != nil {
		return nil, err
	}
	if cfg.VehiclesPerRoute, err = intEnv("SIM_VEHICLES_PER_ROUTE", 2); err != nil {
		return nil, err
	}
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if cfg.Transport == "nats" && cfg.NATS.URL == "" {
		return nil, fmt.Errorf("SIM_TRANSPORT=nats requires NATS_URL")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid simulator config: %w", err)
	}
	return cfg, nil
}

// LiveSync configures cmd/livemap.
type LiveSync struct {
	TrackerURL   string        `validate:"required,url"`
	ListenAddr   string        `validate:"required"`
	PollInterval time.Duration `validate:"gt=0"`
	StaleAfter   time.Duration `validate:"gt=0"`
	RouteID      string
	MetricsAddr  string
}

func LoadLiveSync() (*LiveSync, error) {
	_ = godotenv.Load()

	cfg := &LiveSync{
		TrackerURL:  strings.TrimRight(os.Getenv("TRACKER_URL"), "/"),
		ListenAddr:  getenvDefault("LIVESYNC_ADDR", ":3001"),
		RouteID:     os.Getenv("LIVESYNC_ROUTE_ID"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}
	if cfg.TrackerURL == "" {
		return nil, errNoTracker
	}
	var err error
	// reference cadence of the live map is 5s
	if cfg.PollInterval, err = durationEnv("LIVESYNC_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.StaleAfter, err = durationEnv("LIVESYNC_STALE_AFTER", 2*time.Minute); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid livesync config: %w", err)
	}
	return cfg, nil
}
