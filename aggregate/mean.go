package aggregate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/nims-federated-learning/NIMS-FL/checkpoint"
)

func init() {
	Register("mean", func(Options) (Aggregator, error) {
		return NewMean(), nil
	})
}

// Mean averages all checkpoints with equal weight. Floating point
// parameters divide exactly; integer parameters use floored division,
// rounding towards negative infinity.
type Mean struct{}

func NewMean() *Mean {
	return &Mean{}
}

func (*Mean) Aggregate(checkpointPaths []string, destination string) error {
	if len(checkpointPaths) == 0 {
		return fmt.Errorf("no checkpoints to aggregate")
	}

	var out *checkpoint.State
	for _, path := range checkpointPaths {
		state, err := checkpoint.Load(path)
		if err != nil {
			return err
		}
		if out == nil {
			out = state
			continue
		}
		if err := accumulate(out, state, path); err != nil {
			return err
		}
	}

	n := len(checkpointPaths)
	for key, tensor := range out.Params {
		switch tensor.Dtype {
		case checkpoint.Float64:
			floats.Scale(1/float64(n), tensor.Floats)
		case checkpoint.Int64:
			for i, v := range tensor.Ints {
				tensor.Ints[i] = floorDiv(v, int64(n))
			}
		}
		out.Params[key] = tensor
	}

	return out.Write(destination)
}

// accumulate adds src into dst element-wise. The parameter sets, dtypes
// and sizes must match exactly.
func accumulate(dst, src *checkpoint.State, srcPath string) error {
	if err := matchKeys(dst, src, srcPath); err != nil {
		return err
	}

	for key, tensor := range src.Params {
		target := dst.Params[key]
		if target.Dtype != tensor.Dtype {
			return fmt.Errorf("checkpoint %s: parameter %q changes dtype from %s to %s", srcPath, key, target.Dtype, tensor.Dtype)
		}
		switch tensor.Dtype {
		case checkpoint.Float64:
			if len(target.Floats) != len(tensor.Floats) {
				return fmt.Errorf("checkpoint %s: parameter %q changes size from %d to %d", srcPath, key, len(target.Floats), len(tensor.Floats))
			}
			floats.Add(target.Floats, tensor.Floats)
		case checkpoint.Int64:
			if len(target.Ints) != len(tensor.Ints) {
				return fmt.Errorf("checkpoint %s: parameter %q changes size from %d to %d", srcPath, key, len(target.Ints), len(tensor.Ints))
			}
			for i, v := range tensor.Ints {
				target.Ints[i] += v
			}
		}
	}
	return nil
}

// matchKeys insists that both states carry exactly the same parameter
// names.
func matchKeys(ref, other *checkpoint.State, otherPath string) error {
	for key := range ref.Params {
		if _, ok := other.Params[key]; !ok {
			return &KeyMismatchError{Path: otherPath, Key: key}
		}
	}
	for key := range other.Params {
		if _, ok := ref.Params[key]; !ok {
			return &KeyMismatchError{Path: otherPath, Key: key}
		}
	}
	return nil
}

// floorDiv rounds the quotient towards negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
