package aggregate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nims-federated-learning/NIMS-FL/checkpoint"
)

func writeCheckpoint(t *testing.T, dir, name string, state *checkpoint.State) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, state.Write(path))
	return path
}

func floatState(params map[string][]float64) *checkpoint.State {
	state := &checkpoint.State{Params: map[string]checkpoint.Tensor{}}
	for key, values := range params {
		state.Params[key] = checkpoint.Tensor{Dtype: checkpoint.Float64, Floats: values}
	}
	return state
}

func TestMean_AveragesFloats(t *testing.T) {
	dir := t.TempDir()
	a := writeCheckpoint(t, dir, "alice.10_0_0_1.1.remote", floatState(map[string][]float64{"w": {1, 2}}))
	b := writeCheckpoint(t, dir, "bob.10_0_0_2.1.remote", floatState(map[string][]float64{"w": {3, 6}}))
	dest := filepath.Join(dir, "1.aggregate")

	require.NoError(t, NewMean().Aggregate([]string{a, b}, dest))

	out, err := checkpoint.Load(dest)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 4}, out.Params["w"].Floats)
}

func TestMean_FloorsIntegers(t *testing.T) {
	dir := t.TempDir()
	a := writeCheckpoint(t, dir, "alice.10_0_0_1.1.remote", &checkpoint.State{Params: map[string]checkpoint.Tensor{
		"steps": {Dtype: checkpoint.Int64, Ints: []int64{3, -3}},
	}})
	b := writeCheckpoint(t, dir, "bob.10_0_0_2.1.remote", &checkpoint.State{Params: map[string]checkpoint.Tensor{
		"steps": {Dtype: checkpoint.Int64, Ints: []int64{4, -4}},
	}})
	dest := filepath.Join(dir, "1.aggregate")

	require.NoError(t, NewMean().Aggregate([]string{a, b}, dest))

	out, err := checkpoint.Load(dest)
	require.NoError(t, err)
	// 7/2 floors to 3, -7/2 floors to -4.
	require.Equal(t, []int64{3, -4}, out.Params["steps"].Ints)
	require.Equal(t, checkpoint.Int64, out.Params["steps"].Dtype)
}

func TestMean_KeyMismatchFatal(t *testing.T) {
	dir := t.TempDir()
	a := writeCheckpoint(t, dir, "alice.10_0_0_1.1.remote", floatState(map[string][]float64{"w": {1}, "b": {2}}))
	b := writeCheckpoint(t, dir, "bob.10_0_0_2.1.remote", floatState(map[string][]float64{"w": {1}}))
	dest := filepath.Join(dir, "1.aggregate")

	err := NewMean().Aggregate([]string{a, b}, dest)
	require.Error(t, err)

	var mismatch *KeyMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "b", mismatch.Key)
}

func TestMean_DtypeMismatchFatal(t *testing.T) {
	dir := t.TempDir()
	a := writeCheckpoint(t, dir, "alice.10_0_0_1.1.remote", floatState(map[string][]float64{"w": {1}}))
	b := writeCheckpoint(t, dir, "bob.10_0_0_2.1.remote", &checkpoint.State{Params: map[string]checkpoint.Tensor{
		"w": {Dtype: checkpoint.Int64, Ints: []int64{1}},
	}})

	err := NewMean().Aggregate([]string{a, b}, filepath.Join(dir, "1.aggregate"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "dtype")
}

func TestMean_RequiresInputs(t *testing.T) {
	require.Error(t, NewMean().Aggregate(nil, filepath.Join(t.TempDir(), "out")))
}

func TestWeighted_ScalesByOwner(t *testing.T) {
	dir := t.TempDir()
	a := writeCheckpoint(t, dir, "alice.10_0_0_1.1.remote", floatState(map[string][]float64{"w": {1, 2}}))
	b := writeCheckpoint(t, dir, "bob.10_0_0_2.1.remote", floatState(map[string][]float64{"w": {5, 6}}))
	dest := filepath.Join(dir, "1.aggregate")

	agg := NewWeighted(map[string]float64{"alice": 0.75, "bob": 0.25})
	require.NoError(t, agg.Aggregate([]string{a, b}, dest))

	out, err := checkpoint.Load(dest)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 3}, out.Params["w"].Floats)
}

func TestWeighted_MissingWeight(t *testing.T) {
	dir := t.TempDir()
	a := writeCheckpoint(t, dir, "alice.10_0_0_1.1.remote", floatState(map[string][]float64{"w": {1}}))

	agg := NewWeighted(map[string]float64{"bob": 1})
	err := agg.Aggregate([]string{a}, filepath.Join(dir, "1.aggregate"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "alice")
}

func TestWeighted_PromotesIntegers(t *testing.T) {
	dir := t.TempDir()
	a := writeCheckpoint(t, dir, "alice.10_0_0_1.1.remote", &checkpoint.State{Params: map[string]checkpoint.Tensor{
		"steps": {Dtype: checkpoint.Int64, Ints: []int64{4}},
	}})
	dest := filepath.Join(dir, "1.aggregate")

	agg := NewWeighted(map[string]float64{"alice": 0.5})
	require.NoError(t, agg.Aggregate([]string{a}, dest))

	out, err := checkpoint.Load(dest)
	require.NoError(t, err)
	require.Equal(t, checkpoint.Float64, out.Params["steps"].Dtype)
	require.Equal(t, []float64{2}, out.Params["steps"].Floats)
}

func TestFactory_BuildsRegisteredKinds(t *testing.T) {
	require.Equal(t, []string{"benchmark", "mean", "weighted"}, Kinds())

	agg, err := New("mean", nil)
	require.NoError(t, err)
	require.IsType(t, &Mean{}, agg)

	agg, err = New("weighted", Options{"weights": map[string]any{"alice": 1.0}})
	require.NoError(t, err)
	require.IsType(t, &Weighted{}, agg)

	_, err = New("median", nil)
	require.Error(t, err)
}

func TestFactory_WeightedRequiresWeights(t *testing.T) {
	_, err := New("weighted", Options{})
	require.Error(t, err)
}
