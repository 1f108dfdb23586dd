package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// Config is the tracker server configuration.
type Config struct {
	DatabaseURL        string `validate:"required"`
	HTTPAddr           string `validate:"required"`
	CORSAllowedOrigins []string
	SnapshotLimit      int     `validate:"gt=0,lte=1000"`
	NearestCount       int     `validate:"gt=0"`
	MinSpeedKmh        float64 `validate:"gt=0"`
	CatalogSeedFile    string
	MetricsAddr        string

	NATS NATSConfig
}

// NATSConfig is shared by the server and the simulator. An empty URL
// disables messaging.
type NATSConfig struct {
	URL                string
	ReportSubject      string `validate:"required_with=URL"`
	StateSubjectPrefix string `validate:"required_with=URL"`
	StreamName         string
	LogSubjects        bool
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Postgres when DATABASE_URL / PG_DSN / PGDATABASE is given, embedded SQLite otherwise
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" {
		if db := os.Getenv("PGDATABASE"); db != "" {
			cfg.DatabaseURL = postgresURLFromEnv(db)
		} else {
			cfg.DatabaseURL = "sqlite://" + getenvDefault("SQLITE_DATABASE", "./data/tracker.db")
		}
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":" + getenvDefault("PORT", "3000")
	}

	cfg.CORSAllowedOrigins = splitList(getenvDefault("CORS_ALLOWED_ORIGINS", "*"))

	var err error
	if cfg.SnapshotLimit, err = intEnv("SNAPSHOT_LIMIT", 200); err != nil {
		return nil, err
	}
	if cfg.NearestCount, err = intEnv("ETA_NEAREST_COUNT", 3); err != nil {
		return nil, err
	}
	if cfg.MinSpeedKmh, err = floatEnv("ETA_MIN_SPEED_KMH", 12); err != nil {
		return nil, err
	}

	cfg.CatalogSeedFile = os.Getenv("CATALOG_SEED_FILE")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.NATS = loadNATS()

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadNATS() NATSConfig {
	return NATSConfig{
		URL:                os.Getenv("NATS_URL"),
		ReportSubject:      getenvDefault("NATS_REPORT_SUBJECT", "reports.>"),
		StateSubjectPrefix: getenvDefault("NATS_STATE_SUBJECT_PREFIX", "vehicles"),
		// JetStream stream name for vehicle subjects
		StreamName:  getenvDefault("NATS_STREAM_NAME", "VEHICLES"),
		LogSubjects: boolEnv("LOG_NATS_SUBJECTS"),
	}
}

func postgresURLFromEnv(db string) string {
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func boolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}

var errNoTracker = errors.New("TRACKER_URL must be set")
