package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
)

// Config holds all service settings, populated from environment variables,
// an optional .env file, and an optional YAML dashboard profile.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// OpenWeather configuration.
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	OpenWeatherTimeout time.Duration
	GeocodeCacheSize   int
	IconBaseURL        string

	// Pipeline and cache behavior.
	ConcurrentAqi   bool
	CacheFreshness  time.Duration
	RefreshInterval time.Duration

	// Persistent storage for the last snapshot.
	StorageBackend string
	SQLitePath     string
	PostgresDSN    string
	MongoURI       string
	MongoDatabase  string

	// Snapshot publishing. Disabled when no brokers are configured.
	KafkaBrokers       []string
	KafkaSnapshotTopic string

	// Ambient location lookup and bootstrap fallbacks.
	IPAPIEnabled            bool
	IPAPIBaseURL            string
	DefaultLocation         string
	LocatorFallbackLocation string
	FallbackLocation        string
}

// KafkaEnabled reports whether snapshot publishing is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from the environment, applying profile values and
// defaults where unset. A .env file in the working directory is loaded first
// if present; it never overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	profile, err := LoadProfile(os.Getenv("DASHBOARD_PROFILE"))
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	owTimeout, err := parsePositiveDuration("OPENWEATHER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	freshness, err := parsePositiveDuration("CACHE_FRESHNESS", "30m")
	if err != nil {
		return nil, err
	}
	refresh, err := time.ParseDuration(sharedcfg.EnvOrDefault("REFRESH_INTERVAL", "0s"))
	if err != nil || refresh < 0 {
		return nil, errors.New("invalid REFRESH_INTERVAL")
	}
	concurrentAqi, err := parseBool("PIPELINE_CONCURRENT_AQI", false)
	if err != nil {
		return nil, err
	}
	ipapiEnabled, err := parseBool("IPAPI_ENABLED", false)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		OpenWeatherAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL: sharedcfg.EnvOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org"),
		OpenWeatherTimeout: owTimeout,
		GeocodeCacheSize:   parseGeocodeCacheSize(),
		IconBaseURL:        sharedcfg.EnvOrDefault("ICON_BASE_URL", profile.iconBaseURL()),

		ConcurrentAqi:   concurrentAqi,
		CacheFreshness:  freshness,
		RefreshInterval: refresh,

		StorageBackend: sharedcfg.EnvOrDefault("STORAGE_BACKEND", StorageMemory),
		SQLitePath:     sharedcfg.EnvOrDefault("SQLITE_PATH", "weather-dashboard.db"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDatabase:  sharedcfg.EnvOrDefault("MONGO_DATABASE", "weather_dashboard"),

		KafkaBrokers:       brokers,
		KafkaSnapshotTopic: sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "weather-snapshots"),

		IPAPIEnabled:            ipapiEnabled,
		IPAPIBaseURL:            sharedcfg.EnvOrDefault("IPAPI_BASE_URL", "http://ip-api.com"),
		DefaultLocation:         sharedcfg.EnvOrDefault("DEFAULT_LOCATION", profile.defaultLocation()),
		LocatorFallbackLocation: sharedcfg.EnvOrDefault("LOCATOR_FALLBACK_LOCATION", profile.locatorFallbackLocation()),
		FallbackLocation:        sharedcfg.EnvOrDefault("FALLBACK_LOCATION", profile.fallbackLocation()),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.OpenWeatherAPIKey == "" {
		return errors.New("OPENWEATHER_API_KEY is required")
	}
	switch c.StorageBackend {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("STORAGE_BACKEND is postgres but POSTGRES_DSN is not set")
		}
	case StorageMongo:
		if c.MongoURI == "" {
			return errors.New("STORAGE_BACKEND is mongo but MONGO_URI is not set")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.KafkaEnabled() && c.KafkaSnapshotTopic == "" {
		return errors.New("KAFKA_SNAPSHOT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.New("invalid " + key)
	}
	return v, nil
}

func parseGeocodeCacheSize() int {
	if s := os.Getenv("GEOCODE_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
