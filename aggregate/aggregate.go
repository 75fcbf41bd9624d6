// Package aggregate implements the model aggregation strategies applied
// at the round barrier. Strategies are resolved by name through a factory
// table so the server configuration can choose between them.
//
// Three strategies ship by default: "mean" averages all checkpoints with
// equal weight, "weighted" scales each checkpoint by a per-participant
// weight from the configuration, and "benchmark" derives the weights by
// evaluating every checkpoint against a shared benchmark task.
package aggregate

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Aggregator merges one round's checkpoint files into a single model
// file. Implementations never modify their input files and write the
// destination atomically.
type Aggregator interface {
	Aggregate(checkpointPaths []string, destination string) error
}

// Options carries the strategy-specific settings from the configuration
// file.
type Options map[string]any

// Decode unpacks the options into a typed struct by YAML round-tripping.
func (o Options) Decode(out any) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// Factory builds an aggregator from its options.
type Factory func(opts Options) (Aggregator, error)

var factories = map[string]Factory{}

// Register makes a factory available under kind. Registration happens in
// package init functions; registering one kind twice panics.
func Register(kind string, f Factory) {
	if _, dup := factories[kind]; dup {
		panic("aggregate: duplicate factory " + kind)
	}
	factories[kind] = f
}

// New builds the aggregator registered under kind.
func New(kind string, opts Options) (Aggregator, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown aggregator %q, have %v", kind, Kinds())
	}
	return f(opts)
}

// Kinds lists the registered aggregator kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KeyMismatchError reports that an input checkpoint does not carry the
// same parameter set as the others of its round.
type KeyMismatchError struct {
	Path string
	Key  string
}

func (e *KeyMismatchError) Error() string {
	return fmt.Sprintf("checkpoint %s: parameter set mismatch on %q", e.Path, e.Key)
}
