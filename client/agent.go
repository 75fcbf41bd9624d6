package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/nims-federated-learning/NIMS-FL/executor"
	"github.com/nims-federated-learning/NIMS-FL/service"
)

var validName = regexp.MustCompile(`^\w+$`)

// Config parameterizes an agent.
type Config struct {
	// Name identifies the participant towards the coordinator. Letters,
	// digits and underscores only.
	Name string
	// SaveDir receives config.latest and checkpoint.latest.
	SaveDir string
	// HeartbeatFrequency is the pause between liveness pings.
	HeartbeatFrequency time.Duration
	// ModelOverwrites are merged over the task configuration received
	// from the coordinator before it is handed to the trainer.
	ModelOverwrites map[string]any
}

// Agent runs the participant loop against a coordinator.
type Agent struct {
	cfg     Config
	api     *API
	trainer executor.Trainer
	log     *slog.Logger

	mu    sync.Mutex
	token string
}

// NewAgent creates an agent and its save directory.
func NewAgent(cfg Config, api *API, trainer executor.Trainer, log *slog.Logger) (*Agent, error) {
	if !validName.MatchString(cfg.Name) {
		return nil, fmt.Errorf("agent name may only contain alphanumeric characters and underscores")
	}
	if cfg.HeartbeatFrequency <= 0 {
		cfg.HeartbeatFrequency = time.Minute
	}
	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating save directory: %w", err)
	}

	return &Agent{
		cfg:     cfg,
		api:     api,
		trainer: trainer,
		log:     log,
	}, nil
}

// Run drives the participant through the whole run: authenticate once,
// then train and submit one checkpoint per round until the coordinator
// reports the run complete. A canceled context closes the session before
// returning.
func (a *Agent) Run(ctx context.Context) error {
	token, err := a.api.Authenticate(ctx, a.cfg.Name)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	a.setToken(token)
	a.log.Info("authenticated", "name", a.cfg.Name)

	hbCtx, stopHeartbeats := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.heartbeatLoop(hbCtx)
	}()
	defer wg.Wait()
	defer stopHeartbeats()

	for {
		model, err := a.api.RequestModel(ctx, a.Token())
		if err != nil {
			return a.conclude(ctx, err)
		}

		confPath, err := a.materialize(model)
		if err != nil {
			return a.conclude(ctx, err)
		}

		a.log.Info("training", "configuration", confPath)
		ckptPath, err := a.trainer.Train(ctx, confPath)
		if err != nil {
			return a.conclude(ctx, fmt.Errorf("training failed: %w", err))
		}

		content, err := os.ReadFile(ckptPath)
		if err != nil {
			return a.conclude(ctx, fmt.Errorf("reading checkpoint: %w", err))
		}
		if err := a.api.SendCheckpoint(ctx, a.Token(), content); err != nil {
			return a.conclude(ctx, err)
		}
		a.log.Info("checkpoint submitted", "path", ckptPath)
	}
}

// Token returns the current session token, empty when no session is open.
func (a *Agent) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *Agent) setToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// conclude maps the error that ended the round loop onto the agent's
// exit behavior: a 403 means the coordinator is done with us and there
// is no session left to close, transport loss makes a close pointless,
// anything else closes the session first.
func (a *Agent) conclude(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		a.log.Info("stopping gracefully")
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.closeSession(closeCtx)
		return ctx.Err()
	}

	var status *StatusError
	if errors.As(cause, &status) && status.Code == http.StatusForbidden {
		a.setToken("")
		a.log.Info("run concluded", "reason", status.Message)
		return nil
	}
	if errors.Is(cause, ErrUnreachable) {
		return cause
	}

	a.closeSession(ctx)
	return cause
}

// heartbeatLoop pings until the session token is cleared or the context
// ends. A failing ping stops the loop; the session then expires on the
// coordinator side.
func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatFrequency)
	defer ticker.Stop()

	for {
		token := a.Token()
		if token == "" {
			return
		}
		if err := a.api.Heartbeat(ctx, token); err != nil {
			if ctx.Err() == nil {
				a.log.Warn("heartbeat failed", "err", err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// closeSession tells the coordinator we are leaving and clears the
// token, which also stops the heartbeat loop.
func (a *Agent) closeSession(ctx context.Context) {
	token := a.Token()
	if token == "" {
		return
	}
	a.setToken("")

	if err := a.api.Close(ctx, token); err != nil {
		a.log.Warn("could not close session", "err", err)
		return
	}
	a.log.Info("session closed")
}

// materialize stores the granted model in the save directory and returns
// the path of the assembled training configuration. The received
// configuration is merged with the agent's overwrites and pointed at the
// stored checkpoint, when one was granted.
func (a *Agent) materialize(model *service.ModelResponse) (string, error) {
	var checkpointPath any
	if len(model.Checkpoint) > 0 {
		path := filepath.Join(a.cfg.SaveDir, "checkpoint.latest")
		if err := os.WriteFile(path, model.Checkpoint, 0o644); err != nil {
			return "", fmt.Errorf("storing checkpoint: %w", err)
		}
		checkpointPath = path
	}

	var configuration map[string]any
	if err := json.Unmarshal(model.Configuration, &configuration); err != nil {
		return "", fmt.Errorf("parsing task configuration: %w", err)
	}
	for key, value := range a.cfg.ModelOverwrites {
		configuration[key] = value
	}
	configuration["checkpoint_path"] = checkpointPath

	data, err := json.Marshal(configuration)
	if err != nil {
		return "", err
	}
	confPath := filepath.Join(a.cfg.SaveDir, "config.latest")
	if err := os.WriteFile(confPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing configuration: %w", err)
	}
	return confPath, nil
}
