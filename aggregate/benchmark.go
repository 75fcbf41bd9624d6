package aggregate

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/nims-federated-learning/NIMS-FL/executor"
)

func init() {
	Register("benchmark", func(opts Options) (Aggregator, error) {
		var cfg struct {
			Executor        string           `yaml:"executor"`
			ExecutorOptions executor.Options `yaml:"executor_options"`
			ConfigPath      string           `yaml:"config_path"`
			TargetMetric    string           `yaml:"target_metric"`
			MinimizedMetric bool             `yaml:"minimized_metric"`
		}
		if err := opts.Decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.ConfigPath == "" {
			return nil, fmt.Errorf("benchmark aggregator requires a config_path")
		}
		if cfg.TargetMetric == "" {
			return nil, fmt.Errorf("benchmark aggregator requires a target_metric")
		}

		eval, err := executor.NewEvaluator(cfg.Executor, cfg.ExecutorOptions)
		if err != nil {
			return nil, err
		}
		return NewBenchmark(eval, cfg.ConfigPath, cfg.TargetMetric, cfg.MinimizedMetric), nil
	})
}

// Benchmark weighs every checkpoint by the evaluation score it reaches on
// a shared benchmark task, so better models pull the aggregate harder.
// Scores are normalized to sum to one. For minimized metrics (losses) the
// normalized scores are inverted and normalized again, giving the lowest
// loss the largest weight.
type Benchmark struct {
	evaluator       executor.Evaluator
	configPath      string
	targetMetric    string
	minimizedMetric bool
}

func NewBenchmark(evaluator executor.Evaluator, configPath, targetMetric string, minimizedMetric bool) *Benchmark {
	return &Benchmark{
		evaluator:       evaluator,
		configPath:      configPath,
		targetMetric:    targetMetric,
		minimizedMetric: minimizedMetric,
	}
}

func (b *Benchmark) Aggregate(checkpointPaths []string, destination string) error {
	scores := make([]float64, len(checkpointPaths))
	for i, path := range checkpointPaths {
		results, err := b.evaluator.Evaluate(context.Background(), b.configPath, path)
		if err != nil {
			return fmt.Errorf("benchmarking %s: %w", path, err)
		}
		score, err := results.Mean(b.targetMetric)
		if err != nil {
			return fmt.Errorf("benchmarking %s: %w", path, err)
		}
		scores[i] = score
	}

	weights, err := normalize(scores)
	if err != nil {
		return err
	}
	if b.minimizedMetric {
		for i, w := range weights {
			weights[i] = 1 - w
		}
		if weights, err = normalize(weights); err != nil {
			return err
		}
	}

	return weightedSum(checkpointPaths, weights, destination)
}

// normalize scales values so they sum to one.
func normalize(values []float64) ([]float64, error) {
	total := floats.Sum(values)
	if total == 0 {
		return nil, fmt.Errorf("benchmark scores sum to zero, cannot derive weights")
	}

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / total
	}
	return out, nil
}
