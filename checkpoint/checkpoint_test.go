package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testState(t *testing.T) *State {
	t.Helper()

	return &State{
		Params: map[string]Tensor{
			"layer.weight": {Dtype: Float64, Shape: []int{2, 2}, Floats: []float64{1, 2, 3, 4}},
			"layer.bias":   {Dtype: Float64, Floats: []float64{0.5, -0.5}},
			"steps":        {Dtype: Int64, Ints: []int64{10}},
		},
	}
}

func TestState_EncodeDecode(t *testing.T) {
	state := testState(t)

	data, err := state.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, state, decoded)
}

func TestState_KeysSorted(t *testing.T) {
	state := testState(t)
	require.Equal(t, []string{"layer.bias", "layer.weight", "steps"}, state.Keys())
}

func TestState_ValidateRejectsEmpty(t *testing.T) {
	state := &State{}
	require.Error(t, state.Validate())
}

func TestState_ValidateRejectsShapeMismatch(t *testing.T) {
	state := &State{Params: map[string]Tensor{
		"w": {Dtype: Float64, Shape: []int{3}, Floats: []float64{1, 2}},
	}}

	err := state.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "shape")
}

func TestState_ValidateRejectsMixedValues(t *testing.T) {
	state := &State{Params: map[string]Tensor{
		"w": {Dtype: Int64, Ints: []int64{1}, Floats: []float64{1}},
	}}
	require.Error(t, state.Validate())
}

func TestState_ValidateRejectsUnknownDtype(t *testing.T) {
	state := &State{Params: map[string]Tensor{
		"w": {Dtype: "float16", Floats: []float64{1}},
	}}

	err := state.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown dtype")
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
}

func TestState_WriteLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.aggregate")

	state := testState(t)
	require.NoError(t, state.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, state, loaded)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestWriteFileAtomic_ReplacesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.remote")

	require.NoError(t, WriteFileAtomic(path, []byte("first")))
	require.NoError(t, WriteFileAtomic(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	// No temporary files may survive the writes.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, strings.HasSuffix(entries[0].Name(), ".tmp"))
}
