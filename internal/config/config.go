package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	BaseURL          string
	VehicleID        string
	RouteID          string
	AccessToken      string
	PollInterval     time.Duration
	ThresholdSeconds int
	HTTPTimeout      time.Duration
	CacheTTL         time.Duration
	RouteRefresh     time.Duration
	HTTPAddr         string
	CORSOrigins      []string
	MetricsAddr      string
	NATSURL          string
	LogNATSSubjects  bool
	AlertStoreDSN    string
	LogLevel         zerolog.Level
	Location         *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	base := strings.TrimSpace(os.Getenv("UNIBUS_BASE_URL"))
	if base == "" {
		return nil, errors.New("UNIBUS_BASE_URL must be set")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid UNIBUS_BASE_URL: %q", base)
	}
	cfg.BaseURL = strings.TrimRight(base, "/")

	cfg.VehicleID = getenvDefault("UNIBUS_VEHICLE_ID", "bus-01")
	cfg.RouteID = getenvDefault("UNIBUS_ROUTE_ID", "inu-a")
	cfg.AccessToken = strings.TrimSpace(os.Getenv("UNIBUS_ACCESS_TOKEN"))

	if cfg.PollInterval, err = positiveDuration("POLL_INTERVAL_MS", 10000, time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = positiveDuration("HTTP_TIMEOUT_MS", 8000, time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = positiveDuration("CACHE_TTL_SEC", 300, time.Second); err != nil {
		return nil, err
	}
	if cfg.RouteRefresh, err = positiveDuration("ROUTE_REFRESH_SEC", 1800, time.Second); err != nil {
		return nil, err
	}

	// Near-arrival threshold (seconds)
	if v := os.Getenv("ALERT_THRESHOLD_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid ALERT_THRESHOLD_SEC: %q", v)
		}
		cfg.ThresholdSeconds = sec
	} else {
		cfg.ThresholdSeconds = 60
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	cfg.CORSOrigins = splitList(getenvDefault("CORS_ORIGINS", "*"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty disables event publishing.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Alert history store: explicit DSN, else DATABASE_URL, else PG* vars when PGDATABASE is set.
	cfg.AlertStoreDSN = firstNonEmpty(os.Getenv("ALERT_STORE_DSN"), os.Getenv("DATABASE_URL"))
	if cfg.AlertStoreDSN == "" && os.Getenv("PGDATABASE") != "" {
		cfg.AlertStoreDSN = postgresFromEnv()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(getenvDefault("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q", os.Getenv("LOG_LEVEL"))
	}
	cfg.LogLevel = level

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

func positiveDuration(key string, def int, unit time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * unit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func postgresFromEnv() string {
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
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
