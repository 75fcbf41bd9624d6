// Package executor bridges the coordination layer to the training stack.
// Trainers produce a checkpoint from a task configuration; evaluators
// score an existing checkpoint against a benchmark task. Both are
// resolved from the configuration file through a factory table, so the
// actual training program stays pluggable.
package executor

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Results maps metric names to per-target values as reported by an
// evaluation run.
type Results map[string][]float64

// Mean returns the average value of the named metric.
func (r Results) Mean(metric string) (float64, error) {
	values, ok := r[metric]
	if !ok || len(values) == 0 {
		return 0, fmt.Errorf("metric %q missing from evaluation results", metric)
	}
	return floats.Sum(values) / float64(len(values)), nil
}

// Trainer runs one local training pass.
type Trainer interface {
	// Train runs the task described by configPath and returns the path of
	// the checkpoint it produced.
	Train(ctx context.Context, configPath string) (string, error)
}

// Evaluator scores a checkpoint against the task described by configPath.
type Evaluator interface {
	Evaluate(ctx context.Context, configPath, checkpointPath string) (Results, error)
}
