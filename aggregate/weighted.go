package aggregate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/nims-federated-learning/NIMS-FL/checkpoint"
)

func init() {
	Register("weighted", func(opts Options) (Aggregator, error) {
		var cfg struct {
			Weights map[string]float64 `yaml:"weights"`
		}
		if err := opts.Decode(&cfg); err != nil {
			return nil, err
		}
		if len(cfg.Weights) == 0 {
			return nil, fmt.Errorf("weighted aggregator requires a weights table")
		}
		return NewWeighted(cfg.Weights), nil
	})
}

// Weighted computes a weight-scaled sum of all checkpoints, looking each
// input's weight up by the participant name encoded in its filename.
// Participants with more data are typically given proportionally larger
// weights. The scaling promotes integer parameters to float64.
type Weighted struct {
	weights map[string]float64
}

func NewWeighted(weights map[string]float64) *Weighted {
	return &Weighted{weights: weights}
}

func (w *Weighted) Aggregate(checkpointPaths []string, destination string) error {
	weights := make([]float64, len(checkpointPaths))
	for i, path := range checkpointPaths {
		owner := checkpoint.Owner(path)
		weight, ok := w.weights[owner]
		if !ok {
			return fmt.Errorf("no weight configured for participant %q", owner)
		}
		weights[i] = weight
	}
	return weightedSum(checkpointPaths, weights, destination)
}

// weightedSum accumulates weights[i] * checkpoint[i] into destination.
// Every parameter comes out as float64.
func weightedSum(checkpointPaths []string, weights []float64, destination string) error {
	if len(checkpointPaths) == 0 {
		return fmt.Errorf("no checkpoints to aggregate")
	}

	var out *checkpoint.State
	for i, path := range checkpointPaths {
		state, err := checkpoint.Load(path)
		if err != nil {
			return err
		}
		asFloat(state)

		if out == nil {
			for _, tensor := range state.Params {
				floats.Scale(weights[i], tensor.Floats)
			}
			out = state
			continue
		}

		if err := matchKeys(out, state, path); err != nil {
			return err
		}
		for key, tensor := range state.Params {
			target := out.Params[key]
			if len(target.Floats) != len(tensor.Floats) {
				return fmt.Errorf("checkpoint %s: parameter %q changes size from %d to %d", path, key, len(target.Floats), len(tensor.Floats))
			}
			floats.AddScaled(target.Floats, weights[i], tensor.Floats)
		}
	}

	return out.Write(destination)
}

// asFloat converts every integer tensor of state to float64 in place.
func asFloat(state *checkpoint.State) {
	for key, tensor := range state.Params {
		if tensor.Dtype != checkpoint.Int64 {
			continue
		}
		converted := checkpoint.Tensor{
			Dtype:  checkpoint.Float64,
			Shape:  tensor.Shape,
			Floats: make([]float64, len(tensor.Ints)),
		}
		for i, v := range tensor.Ints {
			converted.Floats[i] = float64(v)
		}
		state.Params[key] = converted
	}
}
