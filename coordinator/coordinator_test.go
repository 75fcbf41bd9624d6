package coordinator

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingAggregator captures aggregation calls and writes a fixed
// aggregate file so follow-up grants have something to hand out.
type recordingAggregator struct {
	mu    sync.Mutex
	calls [][]string
	fail  bool
}

func (a *recordingAggregator) Aggregate(checkpointPaths []string, destination string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fail {
		return errors.New("aggregation exploded")
	}
	a.calls = append(a.calls, append([]string(nil), checkpointPaths...))
	return os.WriteFile(destination, []byte("aggregate"), 0o644)
}

func (a *recordingAggregator) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type testCoordinator struct {
	coord    *Coordinator
	registry *Registry
	gate     *Gate
	agg      *recordingAggregator
	saveDir  string
}

func setupCoordinator(t *testing.T, rounds, minParticipants int) *testCoordinator {
	t.Helper()

	dir := t.TempDir()
	taskConfig := filepath.Join(dir, "task.json")
	require.NoError(t, os.WriteFile(taskConfig, []byte(`{"epochs": 1}`), 0o644))

	registry := NewRegistry(time.Minute)
	gate := NewGate(GatePolicy{
		MinParticipants: minParticipants,
		MaxParticipants: 100,
	}, registry, testLogger())

	agg := &recordingAggregator{}
	saveDir := filepath.Join(dir, "server")
	coord, err := New(Config{
		Rounds:         rounds,
		TaskConfigFile: taskConfig,
		SaveDir:        saveDir,
	}, registry, gate, agg, testLogger())
	require.NoError(t, err)

	return &testCoordinator{coord: coord, registry: registry, gate: gate, agg: agg, saveDir: saveDir}
}

func (tc *testCoordinator) admit(t *testing.T, name, addr string) string {
	t.Helper()

	token, err := tc.coord.Authenticate(name, addr)
	require.NoError(t, err)
	return token
}

func TestCoordinator_RejectsBadConfig(t *testing.T) {
	registry := NewRegistry(time.Minute)
	gate := NewGate(GatePolicy{MinParticipants: 1, MaxParticipants: 2}, registry, testLogger())

	_, err := New(Config{Rounds: 0, TaskConfigFile: "task.json", SaveDir: t.TempDir()}, registry, gate, &recordingAggregator{}, testLogger())
	require.Error(t, err)

	_, err = New(Config{Rounds: 1, SaveDir: t.TempDir()}, registry, gate, &recordingAggregator{}, testLogger())
	require.Error(t, err)
}

func TestCoordinator_GrantBackpressureUntilMinimum(t *testing.T) {
	tc := setupCoordinator(t, 3, 2)
	token := tc.admit(t, "alice", "10.0.0.1")

	_, _, err := tc.coord.GrantModel(token, "10.0.0.1")
	require.ErrorIs(t, err, ErrBackpressure)
	require.False(t, tc.gate.Closed())
}

func TestCoordinator_FirstGrantClosesRegistration(t *testing.T) {
	tc := setupCoordinator(t, 3, 2)
	tokenA := tc.admit(t, "alice", "10.0.0.1")
	tc.admit(t, "bob", "10.0.0.2")

	conf, model, err := tc.coord.GrantModel(tokenA, "10.0.0.1")
	require.NoError(t, err)
	require.JSONEq(t, `{"epochs": 1}`, string(conf))
	require.Empty(t, model) // no start point, first round trains from scratch
	require.True(t, tc.gate.Closed())

	_, err = tc.coord.Authenticate("carol", "10.0.0.3")
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestCoordinator_NoDoubleGrant(t *testing.T) {
	tc := setupCoordinator(t, 3, 2)
	tokenA := tc.admit(t, "alice", "10.0.0.1")
	tokenB := tc.admit(t, "bob", "10.0.0.2")

	_, _, err := tc.coord.GrantModel(tokenA, "10.0.0.1")
	require.NoError(t, err)

	_, _, err = tc.coord.GrantModel(tokenA, "10.0.0.1")
	require.ErrorIs(t, err, ErrBackpressure)

	_, _, err = tc.coord.GrantModel(tokenB, "10.0.0.2")
	require.NoError(t, err)
}

func TestCoordinator_BarrierWaitsForAll(t *testing.T) {
	tc := setupCoordinator(t, 3, 3)
	tokens := map[string]string{
		"10.0.0.1": tc.admit(t, "alice", "10.0.0.1"),
		"10.0.0.2": tc.admit(t, "bob", "10.0.0.2"),
		"10.0.0.3": tc.admit(t, "carol", "10.0.0.3"),
	}
	for addr, token := range tokens {
		_, _, err := tc.coord.GrantModel(token, addr)
		require.NoError(t, err)
	}

	require.NoError(t, tc.coord.SubmitCheckpoint(tokens["10.0.0.1"], "10.0.0.1", []byte("a")))
	require.NoError(t, tc.coord.SubmitCheckpoint(tokens["10.0.0.2"], "10.0.0.2", []byte("b")))
	require.Equal(t, 0, tc.agg.callCount())
	require.Equal(t, 1, tc.coord.CurrentRound())

	require.NoError(t, tc.coord.SubmitCheckpoint(tokens["10.0.0.3"], "10.0.0.3", []byte("c")))
	require.Equal(t, 1, tc.agg.callCount())
	require.Equal(t, 2, tc.coord.CurrentRound())

	// Inputs are visited in registration order.
	require.Equal(t, []string{
		filepath.Join(tc.saveDir, "alice.10_0_0_1.1.remote"),
		filepath.Join(tc.saveDir, "bob.10_0_0_2.1.remote"),
		filepath.Join(tc.saveDir, "carol.10_0_0_3.1.remote"),
	}, tc.agg.calls[0])

	_, err := os.Stat(filepath.Join(tc.saveDir, "1.aggregate"))
	require.NoError(t, err)
}

func TestCoordinator_ResubmissionOverwrites(t *testing.T) {
	tc := setupCoordinator(t, 3, 2)
	tokenA := tc.admit(t, "alice", "10.0.0.1")
	tc.admit(t, "bob", "10.0.0.2")

	_, _, err := tc.coord.GrantModel(tokenA, "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, tc.coord.SubmitCheckpoint(tokenA, "10.0.0.1", []byte("first")))
	require.NoError(t, tc.coord.SubmitCheckpoint(tokenA, "10.0.0.1", []byte("second")))

	data, err := os.ReadFile(filepath.Join(tc.saveDir, "alice.10_0_0_1.1.remote"))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	// The round is still open: bob has not submitted.
	require.Equal(t, 0, tc.agg.callCount())
}

func TestCoordinator_SecondRoundDistributesAggregate(t *testing.T) {
	tc := setupCoordinator(t, 2, 1)
	token := tc.admit(t, "alice", "10.0.0.1")

	_, model, err := tc.coord.GrantModel(token, "10.0.0.1")
	require.NoError(t, err)
	require.Empty(t, model)

	require.NoError(t, tc.coord.SubmitCheckpoint(token, "10.0.0.1", []byte("ckpt")))

	_, model, err = tc.coord.GrantModel(token, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "aggregate", string(model))
}

func TestCoordinator_StartPointSeedsFirstRound(t *testing.T) {
	dir := t.TempDir()
	taskConfig := filepath.Join(dir, "task.json")
	require.NoError(t, os.WriteFile(taskConfig, []byte(`{}`), 0o644))
	startPoint := filepath.Join(dir, "warm.start")
	require.NoError(t, os.WriteFile(startPoint, []byte("warm"), 0o644))

	registry := NewRegistry(time.Minute)
	gate := NewGate(GatePolicy{MinParticipants: 1, MaxParticipants: 2}, registry, testLogger())
	coord, err := New(Config{
		Rounds:         1,
		TaskConfigFile: taskConfig,
		SaveDir:        filepath.Join(dir, "server"),
		StartPoint:     startPoint,
	}, registry, gate, &recordingAggregator{}, testLogger())
	require.NoError(t, err)

	token, err := coord.Authenticate("alice", "10.0.0.1")
	require.NoError(t, err)

	_, model, err := coord.GrantModel(token, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "warm", string(model))
}

func TestCoordinator_TerminalAfterAllRounds(t *testing.T) {
	tc := setupCoordinator(t, 1, 1)
	token := tc.admit(t, "alice", "10.0.0.1")

	_, _, err := tc.coord.GrantModel(token, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, tc.coord.MoreRoundsRequired())

	require.NoError(t, tc.coord.SubmitCheckpoint(token, "10.0.0.1", []byte("ckpt")))
	require.False(t, tc.coord.MoreRoundsRequired())

	_, _, err = tc.coord.GrantModel(token, "10.0.0.1")
	require.ErrorIs(t, err, ErrRoundsComplete)
	require.NotErrorIs(t, err, ErrBackpressure)
}

func TestCoordinator_AggregationFailureHaltsAdvance(t *testing.T) {
	tc := setupCoordinator(t, 2, 1)
	token := tc.admit(t, "alice", "10.0.0.1")

	_, _, err := tc.coord.GrantModel(token, "10.0.0.1")
	require.NoError(t, err)

	tc.agg.fail = true
	err = tc.coord.SubmitCheckpoint(token, "10.0.0.1", []byte("ckpt"))
	require.Error(t, err)
	require.Equal(t, 1, tc.coord.CurrentRound())

	// A retried submission re-triggers aggregation once the fault clears.
	tc.agg.fail = false
	require.NoError(t, tc.coord.SubmitCheckpoint(token, "10.0.0.1", []byte("ckpt")))
	require.Equal(t, 2, tc.coord.CurrentRound())
}

func TestCoordinator_CloseRemovesParticipant(t *testing.T) {
	tc := setupCoordinator(t, 3, 2)
	tokenA := tc.admit(t, "alice", "10.0.0.1")
	tc.admit(t, "bob", "10.0.0.2")

	require.NoError(t, tc.coord.Close(tokenA, "10.0.0.1"))
	require.Equal(t, 1, tc.registry.Len())

	err := tc.coord.Heartbeat(tokenA, "10.0.0.1")
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestCoordinator_DepartureCompletesBarrier(t *testing.T) {
	tc := setupCoordinator(t, 3, 2)
	tokenA := tc.admit(t, "alice", "10.0.0.1")
	tokenB := tc.admit(t, "bob", "10.0.0.2")

	_, _, err := tc.coord.GrantModel(tokenA, "10.0.0.1")
	require.NoError(t, err)
	_, _, err = tc.coord.GrantModel(tokenB, "10.0.0.2")
	require.NoError(t, err)

	require.NoError(t, tc.coord.SubmitCheckpoint(tokenA, "10.0.0.1", []byte("a")))
	require.Equal(t, 0, tc.agg.callCount())

	// Bob leaves instead of submitting; alice's submission now completes
	// the round on its own.
	require.NoError(t, tc.coord.Close(tokenB, "10.0.0.2"))
	require.Equal(t, 1, tc.agg.callCount())
	require.Equal(t, []string{filepath.Join(tc.saveDir, "alice.10_0_0_1.1.remote")}, tc.agg.calls[0])
	require.Equal(t, 2, tc.coord.CurrentRound())
}

func TestCoordinator_SubmitWithoutGrantDoesNotCount(t *testing.T) {
	tc := setupCoordinator(t, 3, 2)
	tokenA := tc.admit(t, "alice", "10.0.0.1")
	tokenB := tc.admit(t, "bob", "10.0.0.2")

	_, _, err := tc.coord.GrantModel(tokenA, "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, tc.coord.SubmitCheckpoint(tokenA, "10.0.0.1", []byte("a")))

	// Bob never requested a model; his upload is stored but the barrier
	// keeps waiting for a submission matching the current round.
	require.NoError(t, tc.coord.SubmitCheckpoint(tokenB, "10.0.0.2", []byte("b")))
	require.Equal(t, 0, tc.agg.callCount())
	require.Equal(t, 1, tc.coord.CurrentRound())
}

func TestCoordinator_GrantRacesYieldSingleWinnerPerParticipant(t *testing.T) {
	tc := setupCoordinator(t, 3, 2)
	tokenA := tc.admit(t, "alice", "10.0.0.1")
	tc.admit(t, "bob", "10.0.0.2")

	const attempts = 16
	var granted int64
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := tc.coord.GrantModel(tokenA, "10.0.0.1"); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, granted)
}
