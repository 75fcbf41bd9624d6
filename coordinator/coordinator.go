package coordinator

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nims-federated-learning/NIMS-FL/checkpoint"
	"github.com/nims-federated-learning/NIMS-FL/metrics"
)

// Aggregator merges one round's checkpoint files into a single model file.
type Aggregator interface {
	Aggregate(checkpointPaths []string, destination string) error
}

// Config parameterizes a coordination run.
type Config struct {
	// Rounds is the number of aggregation rounds to run.
	Rounds int
	// TaskConfigFile is the training task description granted to every
	// participant together with the model.
	TaskConfigFile string
	// SaveDir receives all checkpoint files of the run.
	SaveDir string
	// StartPoint optionally seeds the first round with an existing
	// checkpoint file. When empty, the first round trains from scratch.
	StartPoint string
}

// Coordinator drives the round lifecycle: granting models, collecting
// checkpoints, aggregating at the round barrier and advancing. It is the
// single entry point transport handlers call into.
type Coordinator struct {
	cfg      Config
	registry *Registry
	gate     *Gate
	agg      Aggregator
	layout   checkpoint.Layout
	log      *slog.Logger

	// mu serializes all round state: the grant test-and-set, submissions,
	// the barrier check and the advance that follows it. Lock order is
	// always mu before the registry lock.
	mu              sync.Mutex
	currentRound    int
	latestAggregate string
}

// New creates a coordinator and its save directory.
func New(cfg Config, registry *Registry, gate *Gate, agg Aggregator, log *slog.Logger) (*Coordinator, error) {
	if cfg.Rounds < 1 {
		return nil, fmt.Errorf("round count must be positive, got %d", cfg.Rounds)
	}
	if cfg.TaskConfigFile == "" {
		return nil, fmt.Errorf("task configuration file is required")
	}
	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating save directory: %w", err)
	}

	return &Coordinator{
		cfg:             cfg,
		registry:        registry,
		gate:            gate,
		agg:             agg,
		layout:          checkpoint.Layout{Dir: cfg.SaveDir},
		log:             log,
		currentRound:    1,
		latestAggregate: cfg.StartPoint,
	}, nil
}

// Authenticate registers the caller and returns its session token.
func (c *Coordinator) Authenticate(name, addr string) (string, error) {
	return c.gate.Admit(name, addr)
}

// Heartbeat refreshes the caller's liveness timestamp.
func (c *Coordinator) Heartbeat(token, addr string) error {
	return c.registry.Heartbeat(token, addr)
}

// Close removes the caller from the registry. A departure mid-round can
// complete the barrier for the remaining participants, in which case the
// round is aggregated and advanced right here.
func (c *Coordinator) Close(token, addr string) error {
	p, err := c.registry.Validate(token, addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Remove(p.Token)
	c.log.Info("participant disconnected", "participant", p.String(), "alive", c.registry.AliveCount())

	if c.registry.Len() > 0 && c.barrierReachedLocked() {
		if err := c.aggregateLocked(); err != nil {
			// The departure is done either way; the failure surfaces on
			// the next submission retry.
			c.log.Error("aggregation after departure failed", "err", err)
			return nil
		}
		c.advanceLocked()
	}
	return nil
}

// GrantModel hands the caller the task configuration and the latest
// aggregate checkpoint, at most once per round per participant.
func (c *Coordinator) GrantModel(token, addr string) (conf, model []byte, err error) {
	p, err := c.registry.Validate(token, addr)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gate.Open() {
		return nil, nil, fmt.Errorf("%w: waiting for more participants to join", ErrBackpressure)
	}
	c.gate.Shut()

	if !c.moreRoundsLocked() {
		return nil, nil, ErrRoundsComplete
	}
	if p.Round >= c.currentRound {
		return nil, nil, fmt.Errorf("%w: next round is not available yet", ErrBackpressure)
	}

	conf, err = os.ReadFile(c.cfg.TaskConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("reading task configuration: %w", err)
	}
	if c.latestAggregate != "" {
		model, err = os.ReadFile(c.latestAggregate)
		if err != nil {
			return nil, nil, fmt.Errorf("reading latest checkpoint: %w", err)
		}
	}

	p.Round = c.currentRound
	p.Status = StatusRequested

	metrics.ModelsGranted.Inc()
	c.log.Info("model granted", "participant", p.String(), "round", p.Round)
	return conf, model, nil
}

// SubmitCheckpoint stores the caller's checkpoint for the current round.
// When it is the last one missing, the round is aggregated and the next
// one opened before the call returns.
func (c *Coordinator) SubmitCheckpoint(token, addr string, content []byte) error {
	p, err := c.registry.Validate(token, addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.layout.ParticipantFile(p.Name, p.Addr, c.currentRound)
	if err := checkpoint.WriteFileAtomic(path, content); err != nil {
		return fmt.Errorf("storing checkpoint: %w", err)
	}
	p.Status = StatusSubmitted

	metrics.CheckpointsReceived.Inc()
	c.log.Info("checkpoint received", "participant", p.String(), "round", c.currentRound)

	if !c.barrierReachedLocked() {
		return nil
	}
	if err := c.aggregateLocked(); err != nil {
		return err
	}
	c.advanceLocked()
	return nil
}

// MoreRoundsRequired reports whether the run still has rounds to play.
func (c *Coordinator) MoreRoundsRequired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moreRoundsLocked()
}

// CurrentRound returns the round currently being collected, starting at 1.
func (c *Coordinator) CurrentRound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRound
}

func (c *Coordinator) moreRoundsLocked() bool {
	return c.currentRound <= c.cfg.Rounds
}

// barrierReachedLocked reports whether every registered participant has
// submitted its checkpoint for the current round.
func (c *Coordinator) barrierReachedLocked() bool {
	for _, p := range c.registry.Participants() {
		if p.Round != c.currentRound || p.Status != StatusSubmitted {
			return false
		}
	}
	return true
}

func (c *Coordinator) aggregateLocked() error {
	c.log.Info("starting aggregation", "round", c.currentRound)

	participants := c.registry.Participants()
	paths := make([]string, len(participants))
	for i, p := range participants {
		paths[i] = c.layout.ParticipantFile(p.Name, p.Addr, c.currentRound)
	}
	destination := c.layout.AggregateFile(c.currentRound)

	start := time.Now()
	if err := c.agg.Aggregate(paths, destination); err != nil {
		return fmt.Errorf("aggregating round %d: %w", c.currentRound, err)
	}
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())

	c.latestAggregate = destination
	c.log.Info("aggregate model saved", "path", destination)
	return nil
}

func (c *Coordinator) advanceLocked() {
	for _, p := range c.registry.Participants() {
		p.Status = StatusIdle
	}
	c.currentRound++
	metrics.RoundsCompleted.Inc()

	if c.moreRoundsLocked() {
		c.log.Info("starting round", "round", c.currentRound)
	}
}
