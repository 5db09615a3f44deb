package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP       HTTPConfig
	Database   DatabaseConfig
	Geocoding  GeocodingConfig
	Attendance AttendanceConfig
	Storage    StorageConfig
	Kafka      KafkaConfig
	Logging    LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	AllowedOriginsCSV string
	// RateLimit is requests per minute per client IP; 0 disables the limiter.
	RateLimit int
}

// Addr is host:port for the listener.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DatabaseConfig describes the Postgres pool. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL            string
	MaxConns       int
	AcquireTimeout time.Duration
}

// GeocodingConfig lists providers in the order they are asked.
type GeocodingConfig struct {
	Providers          []string
	NominatimBaseURL   string
	NominatimUserAgent string
	Language           string
	MapboxBaseURL      string
	MapboxAPIKey       string
	Timeout            time.Duration
	Limit              int
}

// AttendanceConfig controls the daily record lifecycle.
type AttendanceConfig struct {
	Location         *time.Location
	MaxDailyAttempts int
	RetryAttempts    int
	RetryDelay       time.Duration
}

// StorageConfig points at the MinIO bucket for attendance photos. An empty
// endpoint disables uploads.
type StorageConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	UseSSL      bool
	PhotoBucket string
}

// KafkaConfig configures the event producer and the check-in consumer.
type KafkaConfig struct {
	Brokers      []string
	EventsTopic  string
	CheckinTopic string
	GroupID      string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 15 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultRateLimit        = 120
	defaultDBMaxConns       = 10
	defaultAcquireTimeout   = 5 * time.Second
	defaultGeocodeTimeout   = 8 * time.Second
	defaultGeocodeLimit     = 5
	defaultTimezone         = "UTC"
	defaultMaxDailyAttempts = 5
	defaultRetryAttempts    = 3
	defaultRetryDelay       = time.Second
	defaultPhotoBucket      = "attendance-photos"
	defaultEventsTopic      = "attendance.events"
	defaultCheckinTopic     = "attendance.checkins"
	defaultGroupID          = "attendance-ingest"
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
)

var knownProviders = map[string]bool{"nominatim": true, "mapbox": true}

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host:              valueOrDefault("SERVER_HOST", defaultHost),
			AllowedOriginsCSV: os.Getenv("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Geocoding: GeocodingConfig{
			Providers:          SplitCSV(strings.ToLower(valueOrDefault("GEOCODE_PROVIDERS", "nominatim"))),
			NominatimBaseURL:   os.Getenv("NOMINATIM_BASE_URL"),
			NominatimUserAgent: os.Getenv("NOMINATIM_USER_AGENT"),
			Language:           os.Getenv("GEOCODE_LANGUAGE"),
			MapboxBaseURL:      os.Getenv("MAPBOX_BASE_URL"),
			MapboxAPIKey:       os.Getenv("MAPBOX_API_KEY"),
		},
		Storage: StorageConfig{
			Endpoint:    os.Getenv("MINIO_ENDPOINT"),
			AccessKey:   os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey:   os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:      parseBoolWithDefault("MINIO_USE_SSL", false),
			PhotoBucket: valueOrDefault("ATTENDANCE_PHOTO_BUCKET", defaultPhotoBucket),
		},
		Kafka: KafkaConfig{
			Brokers:      SplitCSV(os.Getenv("KAFKA_BROKERS")),
			EventsTopic:  valueOrDefault("KAFKA_EVENTS_TOPIC", defaultEventsTopic),
			CheckinTopic: valueOrDefault("KAFKA_CHECKIN_TOPIC", defaultCheckinTopic),
			GroupID:      valueOrDefault("KAFKA_GROUP_ID", defaultGroupID),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	cfg.HTTP.Port, err = parsePort("SERVER_PORT", defaultPort)
	collect(err)
	cfg.HTTP.ReadTimeout, err = parseDurationWithDefault("SERVER_READ_TIMEOUT", defaultReadTimeout)
	collect(err)
	cfg.HTTP.WriteTimeout, err = parseDurationWithDefault("SERVER_WRITE_TIMEOUT", defaultWriteTimeout)
	collect(err)
	cfg.HTTP.IdleTimeout, err = parseDurationWithDefault("SERVER_IDLE_TIMEOUT", defaultIdleTimeout)
	collect(err)
	cfg.HTTP.ShutdownTimeout, err = parseDurationWithDefault("SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	collect(err)
	cfg.HTTP.RateLimit, err = parseIntWithDefault("SERVER_RATE_LIMIT", defaultRateLimit)
	collect(err)

	cfg.Database.MaxConns, err = parseIntWithDefault("DATABASE_MAX_CONNS", defaultDBMaxConns)
	collect(err)
	cfg.Database.AcquireTimeout, err = parseDurationWithDefault("DATABASE_ACQUIRE_TIMEOUT", defaultAcquireTimeout)
	collect(err)

	cfg.Geocoding.Timeout, err = parseDurationWithDefault("GEOCODE_TIMEOUT", defaultGeocodeTimeout)
	collect(err)
	if err == nil && cfg.Geocoding.Timeout <= 0 {
		collect(fmt.Errorf("GEOCODE_TIMEOUT must be positive"))
	}
	cfg.Geocoding.Limit, err = parseIntWithDefault("GEOCODE_LIMIT", defaultGeocodeLimit)
	collect(err)
	for _, p := range cfg.Geocoding.Providers {
		if !knownProviders[p] {
			collect(fmt.Errorf("unknown geocode provider %q", p))
		}
	}

	tz := valueOrDefault("ATTENDANCE_TIMEZONE", defaultTimezone)
	cfg.Attendance.Location, err = time.LoadLocation(tz)
	if err != nil {
		collect(fmt.Errorf("invalid ATTENDANCE_TIMEZONE %q: %w", tz, err))
	}
	cfg.Attendance.MaxDailyAttempts, err = parseIntWithDefault("ATTENDANCE_MAX_DAILY_ATTEMPTS", defaultMaxDailyAttempts)
	collect(err)
	cfg.Attendance.RetryAttempts, err = parseIntWithDefault("ATTENDANCE_RETRY_ATTEMPTS", defaultRetryAttempts)
	collect(err)
	cfg.Attendance.RetryDelay, err = parseDurationWithDefault("ATTENDANCE_RETRY_DELAY", defaultRetryDelay)
	collect(err)
	if cfg.Attendance.RetryAttempts < 1 {
		collect(fmt.Errorf("ATTENDANCE_RETRY_ATTEMPTS must be at least 1"))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}
