// Package graceful ties process lifetime to OS termination signals.
package graceful

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Context creates a context that is canceled when SIGINT or SIGTERM is
// received, or when the returned cancel func is called.
func Context(ctx context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received termination signal, starting graceful shutdown", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Step is one named shutdown action.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Shutdown runs steps in order under a shared timeout. Every step runs even
// when an earlier one fails; failures are joined.
func Shutdown(timeout time.Duration, logger *slog.Logger, steps ...Step) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, step := range steps {
		start := time.Now()
		if err := step.Fn(ctx); err != nil {
			logger.Error("shutdown step failed", "step", step.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		logger.Info("shutdown step done", "step", step.Name, "duration", time.Since(start))
	}
	return errors.Join(errs...)
}
