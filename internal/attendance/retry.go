package attendance

import (
	"context"
	"errors"
	"time"

	"attendance/internal/apperr"
	"attendance/internal/storage"
)

// retryable reports whether a datastore write is worth another attempt.
// Validation, NotFound and Conflict are logical outcomes and surface
// immediately; a lost insert race on the daily key and any unclassified
// driver failure are retried.
func retryable(err error) bool {
	if errors.Is(err, storage.ErrConcurrentWrite) {
		return true
	}
	switch apperr.KindOf(err) {
	case apperr.Validation, apperr.NotFound, apperr.Conflict:
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry calls fn up to RetryAttempts times, sleeping attempt*RetryDelay
// between attempts. fn must re-read any state it depends on.
func withRetry[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		out, err = fn(ctx)
		if err == nil || !retryable(err) {
			return out, err
		}
		if attempt == s.opts.RetryAttempts {
			break
		}
		delay := time.Duration(attempt) * s.opts.RetryDelay
		s.logger.Warn("transient datastore failure, retrying",
			"op", op, "attempt", attempt, "max_attempts", s.opts.RetryAttempts, "delay", delay, "error", err)
		if serr := s.sleep(ctx, delay); serr != nil {
			return out, err
		}
	}
	s.logger.Error("giving up after retries", "op", op, "attempts", s.opts.RetryAttempts, "error", err)
	return out, err
}
