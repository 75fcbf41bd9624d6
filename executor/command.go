package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

func init() {
	RegisterTrainer("command", func(opts Options) (Trainer, error) { return newCommand(opts) })
	RegisterEvaluator("command", func(opts Options) (Evaluator, error) { return newCommand(opts) })
}

// Command runs an external training program. The program is invoked as
//
//	<command> [args...] train <config>
//	<command> [args...] evaluate <config> <checkpoint>
//
// For train, the produced checkpoint path is read from the last non-empty
// line of stdout. For evaluate, stdout must be a JSON object mapping
// metric names to arrays of values.
type Command struct {
	path string
	args []string
	dir  string
}

func newCommand(opts Options) (*Command, error) {
	var cfg struct {
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
		Dir     string   `yaml:"dir"`
	}
	if err := opts.Decode(&cfg); err != nil {
		return nil, err
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("command executor requires a command")
	}
	return &Command{path: cfg.Command, args: cfg.Args, dir: cfg.Dir}, nil
}

func (c *Command) Train(ctx context.Context, configPath string) (string, error) {
	out, err := c.run(ctx, "train", configPath)
	if err != nil {
		return "", err
	}

	path := lastLine(out)
	if path == "" {
		return "", fmt.Errorf("trainer printed no checkpoint path")
	}
	return path, nil
}

func (c *Command) Evaluate(ctx context.Context, configPath, checkpointPath string) (Results, error) {
	out, err := c.run(ctx, "evaluate", configPath, checkpointPath)
	if err != nil {
		return nil, err
	}

	var results Results
	if err := json.Unmarshal(out, &results); err != nil {
		return nil, fmt.Errorf("parsing evaluation results: %w", err)
	}
	return results, nil
}

func (c *Command) run(ctx context.Context, verb string, extra ...string) ([]byte, error) {
	args := append(append([]string(nil), c.args...), verb)
	args = append(args, extra...)

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Dir = c.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", c.path, verb, err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", c.path, verb, err)
	}
	return stdout.Bytes(), nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
