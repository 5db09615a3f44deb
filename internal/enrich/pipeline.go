package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Pipeline applies a sequence of stages to items. Within a stage every step
// runs in its own goroutine and the stage waits for all of them before the
// next one starts.
type Pipeline[T any] struct {
	stages []Stage[T]
	logger *slog.Logger
}

// NewPipeline constructs a Pipeline from the provided stages.
func NewPipeline[T any](logger *slog.Logger, stages ...Stage[T]) *Pipeline[T] {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline[T]{stages: stages, logger: logger}
}

// Run applies every stage to item. A failing step does not stop its stage or
// later stages; all step errors are joined into the result.
func (p *Pipeline[T]) Run(ctx context.Context, item *T) error {
	var errs []error
	for _, stage := range p.stages {
		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		for i, step := range stage.steps {
			wg.Add(1)
			go func(i int, step Step[T]) {
				defer wg.Done()
				if err := step(ctx, item); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("stage %s step %d: %w", stage.name, i, err))
					mu.Unlock()
				}
			}(i, step)
		}
		wg.Wait() // stage barrier
	}
	return errors.Join(errs...)
}

// Process runs every item received on in until the channel closes. Step
// errors are logged and do not stop processing.
func (p *Pipeline[T]) Process(ctx context.Context, in <-chan *T) {
	for item := range in {
		if err := p.Run(ctx, item); err != nil {
			p.logger.Warn("pipeline step failed", "error", err)
		}
	}
}
