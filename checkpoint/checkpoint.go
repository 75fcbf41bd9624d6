package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Dtype identifies the element type of a Tensor.
type Dtype string

const (
	Float64 Dtype = "float64"
	Int64   Dtype = "int64"
)

// Tensor is a flat, row-major array of numeric values plus an optional
// shape. Exactly one of Floats or Ints is populated, selected by Dtype.
type Tensor struct {
	Dtype  Dtype     `json:"dtype"`
	Shape  []int     `json:"shape,omitempty"`
	Floats []float64 `json:"floats,omitempty"`
	Ints   []int64   `json:"ints,omitempty"`
}

// Len returns the number of elements in the tensor.
func (t Tensor) Len() int {
	if t.Dtype == Int64 {
		return len(t.Ints)
	}
	return len(t.Floats)
}

func (t Tensor) validate(name string) error {
	switch t.Dtype {
	case Float64:
		if t.Ints != nil {
			return fmt.Errorf("parameter %q: dtype %s carries integer values", name, t.Dtype)
		}
	case Int64:
		if t.Floats != nil {
			return fmt.Errorf("parameter %q: dtype %s carries float values", name, t.Dtype)
		}
	default:
		return fmt.Errorf("parameter %q: unknown dtype %q", name, t.Dtype)
	}
	if len(t.Shape) > 0 {
		want := 1
		for _, d := range t.Shape {
			if d < 0 {
				return fmt.Errorf("parameter %q: negative dimension %d", name, d)
			}
			want *= d
		}
		if got := t.Len(); got != want {
			return fmt.Errorf("parameter %q: shape %v holds %d elements, got %d", name, t.Shape, want, got)
		}
	}
	return nil
}

// State is the full set of named parameters of a model checkpoint.
type State struct {
	Params map[string]Tensor `json:"params"`
}

// Keys returns the parameter names in sorted order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks every tensor for dtype and shape consistency.
func (s *State) Validate() error {
	if len(s.Params) == 0 {
		return fmt.Errorf("checkpoint holds no parameters")
	}
	for name, t := range s.Params {
		if err := t.validate(name); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses and validates a serialized checkpoint.
func Decode(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Encode serializes the checkpoint for transport or storage.
func (s *State) Encode() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Load reads and decodes the checkpoint stored at path.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Write encodes the checkpoint and stores it at path atomically.
func (s *State) Write(path string) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}
