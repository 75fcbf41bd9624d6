package executor

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Options carries executor-specific settings from the configuration file.
type Options map[string]any

// Decode unpacks the options into a typed struct by YAML round-tripping.
func (o Options) Decode(out any) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// TrainerFactory builds a trainer from its options.
type TrainerFactory func(opts Options) (Trainer, error)

// EvaluatorFactory builds an evaluator from its options.
type EvaluatorFactory func(opts Options) (Evaluator, error)

var (
	trainerFactories   = map[string]TrainerFactory{}
	evaluatorFactories = map[string]EvaluatorFactory{}
)

// RegisterTrainer makes a trainer factory available under kind.
// Registration happens in package init functions; registering one kind
// twice panics.
func RegisterTrainer(kind string, f TrainerFactory) {
	if _, dup := trainerFactories[kind]; dup {
		panic("executor: duplicate trainer factory " + kind)
	}
	trainerFactories[kind] = f
}

// RegisterEvaluator makes an evaluator factory available under kind.
func RegisterEvaluator(kind string, f EvaluatorFactory) {
	if _, dup := evaluatorFactories[kind]; dup {
		panic("executor: duplicate evaluator factory " + kind)
	}
	evaluatorFactories[kind] = f
}

// NewTrainer builds the trainer registered under kind.
func NewTrainer(kind string, opts Options) (Trainer, error) {
	f, ok := trainerFactories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown trainer %q, have %v", kind, kinds(trainerFactories))
	}
	return f(opts)
}

// NewEvaluator builds the evaluator registered under kind.
func NewEvaluator(kind string, opts Options) (Evaluator, error) {
	f, ok := evaluatorFactories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown evaluator %q, have %v", kind, kinds(evaluatorFactories))
	}
	return f(opts)
}

func kinds[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
