// Package enrich runs independent steps in parallel within a stage, while
// enforcing sequential execution between stages.
package enrich

import (
	"context"
)

// Step mutates the item in place. Steps in the same stage run concurrently on
// the same item and must write to disjoint fields.
type Step[T any] func(ctx context.Context, item *T) error

// Stage groups steps that are safe to execute in parallel for a single item.
type Stage[T any] struct {
	name  string
	steps []Step[T]
}

// NewStage constructs a Stage from the provided steps.
func NewStage[T any](name string, steps ...Step[T]) Stage[T] {
	return Stage[T]{name: name, steps: steps}
}
