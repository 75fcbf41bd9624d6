package common

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from either a Go duration
// string ("10s") or a bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds float64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig is the fl-server configuration file.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	Rounds         int    `yaml:"rounds"`
	TaskConfigFile string `yaml:"task_configuration_file"`
	SavePath       string `yaml:"save_path"`
	StartPoint     string `yaml:"start_point"`

	Workers          int      `yaml:"workers"`
	MinParticipants  int      `yaml:"minimum_participants"`
	MaxParticipants  int      `yaml:"maximum_participants"`
	RegistrationWait Duration `yaml:"registration_wait"`
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`

	Aggregator        string         `yaml:"aggregator"`
	AggregatorOptions map[string]any `yaml:"aggregator_options"`

	Blacklist    []string `yaml:"blacklist"`
	Whitelist    []string `yaml:"whitelist"`
	UseWhitelist bool     `yaml:"use_whitelist"`

	TLS TLSConfig `yaml:"tls"`
}

// DefaultServerConfig returns the documented server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:       "localhost:8024",
		Rounds:           10,
		SavePath:         "data/logs/server",
		Workers:          2,
		MinParticipants:  2,
		MaxParticipants:  100,
		RegistrationWait: Duration(10 * time.Second),
		HeartbeatTimeout: Duration(5 * time.Minute),
		Aggregator:       "mean",
	}
}

// LoadServerConfig reads a YAML server configuration, filling unset
// fields with the defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.TaskConfigFile == "" {
		return nil, fmt.Errorf("%s: task_configuration_file is required", path)
	}
	return &cfg, nil
}

// ClientConfig is the fl-client configuration file.
type ClientConfig struct {
	Name     string `yaml:"name"`
	Target   string `yaml:"target"`
	SavePath string `yaml:"save_path"`

	HeartbeatFrequency Duration       `yaml:"heartbeat_frequency"`
	RetryInterval      Duration       `yaml:"retry_interval"`
	ModelOverwrites    map[string]any `yaml:"model_overwrites"`

	Executor        string         `yaml:"executor"`
	ExecutorOptions map[string]any `yaml:"executor_options"`

	TLS TLSConfig `yaml:"tls"`
}

// DefaultClientConfig returns the documented client defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Target:             "localhost:8024",
		SavePath:           "data/logs/client",
		HeartbeatFrequency: Duration(time.Minute),
		RetryInterval:      Duration(time.Second),
		Executor:           "command",
	}
}

// LoadClientConfig reads a YAML client configuration, filling unset
// fields with the defaults.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("%s: name is required", path)
	}
	return &cfg, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
