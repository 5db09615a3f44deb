// Package app wires configuration into the long-lived collaborators shared by
// the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/storage"
	"attendance/pkg/kafkaclient"
	"attendance/pkg/location"
)

// Runtime holds everything a binary needs. Photos and Producer are nil when
// their backends are not configured.
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Store    storage.Store
	Resolver *location.Resolver
	Photos   *storage.PhotoStore
	Producer *kafkaclient.Producer
	Service  *attendance.Service
}

// Build connects to the configured backends. On error every resource opened
// so far is closed.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if rt.Store, err = buildStore(ctx, cfg.Database, logger); err != nil {
		return nil, err
	}

	rt.Resolver = location.NewResolver(logger, Providers(cfg.Geocoding, logger)...)

	if cfg.Storage.Endpoint != "" {
		if rt.Photos, err = storage.NewPhotoStore(cfg.Storage, logger); err != nil {
			return nil, err
		}
		if err = rt.Photos.EnsureBucket(ctx, ""); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("MINIO_ENDPOINT not set, photos are stored inline")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		rt.Producer = kafkaclient.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, logger)
	} else {
		logger.Warn("KAFKA_BROKERS not set, attendance events are not published")
	}

	deps := attendance.Dependencies{Store: rt.Store, Geocoder: rt.Resolver, Logger: logger}
	if rt.Photos != nil {
		deps.Photos = rt.Photos
	}
	if rt.Producer != nil {
		deps.Publisher = rt.Producer
	}
	rt.Service = attendance.NewService(deps, attendance.Options{
		Location:         cfg.Attendance.Location,
		MaxDailyAttempts: cfg.Attendance.MaxDailyAttempts,
		RetryAttempts:    cfg.Attendance.RetryAttempts,
		RetryDelay:       cfg.Attendance.RetryDelay,
	})
	return rt, nil
}

// Close releases the producer and the store.
func (rt *Runtime) Close() {
	if rt.Producer != nil {
		if err := rt.Producer.Close(); err != nil {
			rt.Logger.Warn("closing kafka producer failed", "error", err)
		}
	}
	if rt.Store != nil {
		rt.Store.Close()
	}
}

func buildStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (storage.Store, error) {
	if cfg.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return storage.NewMemoryStore(), nil
	}
	pg, err := storage.NewPostgresStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return pg, nil
}

// Providers builds the geocoding providers in configured order. Mapbox is
// left out when no access token is set.
func Providers(cfg config.GeocodingConfig, logger *slog.Logger) []location.Provider {
	client := &http.Client{Timeout: cfg.Timeout}
	var out []location.Provider
	for _, name := range cfg.Providers {
		switch name {
		case "nominatim":
			out = append(out, location.NewNominatimClient(location.NominatimConfig{
				BaseURL:    cfg.NominatimBaseURL,
				UserAgent:  cfg.NominatimUserAgent,
				Language:   cfg.Language,
				Limit:      cfg.Limit,
				HTTPClient: client,
				Logger:     logger,
			}))
		case "mapbox":
			if cfg.MapboxAPIKey == "" {
				logger.Warn("MAPBOX_API_KEY not set, skipping mapbox provider")
				continue
			}
			out = append(out, location.NewMapboxClient(location.MapboxConfig{
				BaseURL:     cfg.MapboxBaseURL,
				AccessToken: cfg.MapboxAPIKey,
				Limit:       cfg.Limit,
				HTTPClient:  client,
				Logger:      logger,
			}))
		}
	}
	return out
}
