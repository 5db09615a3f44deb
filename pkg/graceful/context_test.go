package graceful

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"
)

func TestGracefulContext(t *testing.T) {
	// Create a context that will be canceled on signal.
	ctx, cancel := Context(context.Background(), nil)
	defer cancel()

	// Simulate sending an interrupt signal to the process.
	go func() {
		time.Sleep(100 * time.Millisecond) // Give the signal handler time to get ready
		if err := syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
			t.Errorf("Failed to send SIGINT: %v", err)
		}
	}()

	select {
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.Canceled) {
			t.Errorf("Expected context.Canceled error, got %v", ctx.Err())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Test timed out waiting for context to be canceled.")
	}
}

func TestGracefulContext_CancelWithoutSignal(t *testing.T) {
	ctx, cancel := Context(context.Background(), nil)
	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("cancel did not end the context")
	}
}

func TestShutdown(t *testing.T) {
	var order []string
	boom := errors.New("flush failed")
	err := Shutdown(time.Second, nil,
		Step{Name: "http", Fn: func(context.Context) error { order = append(order, "http"); return nil }},
		Step{Name: "kafka", Fn: func(context.Context) error { order = append(order, "kafka"); return boom }},
		Step{Name: "db", Fn: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("step context has no deadline")
			}
			order = append(order, "db")
			return nil
		}},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want %v", err, boom)
	}
	if len(order) != 3 || order[2] != "db" {
		t.Fatalf("order = %v", order)
	}
}
