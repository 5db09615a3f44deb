package main

import (
	"context"
	"fmt"
	"os"

	"attendance/internal/app"
	"attendance/internal/config"
	"attendance/internal/logging"
	"attendance/internal/server"
	"attendance/pkg/graceful"
)

func main() {
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	ctx, cancel := graceful.Context(context.Background(), logger)
	defer cancel()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise backends", "error", err)
		os.Exit(1)
	}

	deps := server.Dependencies{
		Attendance: rt.Service,
		Locator:    rt.Resolver,
		Health:     rt.Store,
		Location:   cfg.Attendance.Location,
		Logger:     logger,
	}
	if rt.Photos != nil {
		deps.Photos = rt.Photos
	}
	srv := server.New(cfg.HTTP, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	err = graceful.Shutdown(cfg.HTTP.ShutdownTimeout, logger,
		graceful.Step{Name: "http", Fn: srv.Shutdown},
		graceful.Step{Name: "backends", Fn: func(context.Context) error {
			rt.Close()
			return nil
		}},
	)
	if err != nil {
		os.Exit(1)
	}
}
