// Command fl-client runs a federated learning participant.
//
// The participant authenticates with the coordinator, keeps its session
// alive with heartbeats, and then trains one checkpoint per round: it
// requests the current model, hands the materialized configuration to
// the training executor, and submits the produced checkpoint. The run
// ends when the coordinator reports that all rounds are complete.
//
// # Configuration File
//
// Create a YAML file with the participant settings:
//
//	name: site_0
//	target: "localhost:8024"
//	heartbeat_frequency: 1m
//	retry_interval: 1s
//	executor: command
//	executor_options:
//	  command: python
//	  args: ["train.py"]
//	model_overwrites:
//	  epochs: 1
//	tls:
//	  enabled: true
//	  certificate: data/certificates/site_0.crt
//	  private_key: data/certificates/site_0.key
//	  root_ca: data/certificates/rootCA.pem
//
// # Usage
//
//	go run ./cmd/fl-client --config=client.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nims-federated-learning/NIMS-FL/client"
	"github.com/nims-federated-learning/NIMS-FL/cmd/common"
	buildinfo "github.com/nims-federated-learning/NIMS-FL/common"
	"github.com/nims-federated-learning/NIMS-FL/executor"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		target     = flag.String("target", "", "Coordinator address (overrides config)")
		name       = flag.String("name", "", "Participant name (overrides config)")
		logJSON    = flag.Bool("log-json", false, "Log in JSON format")
		logDebug   = flag.Bool("log-debug", false, "Enable debug logging")
	)
	flag.Parse()

	if *configPath == "" {
		fmt.Println("Error: --config is required")
		os.Exit(1)
	}

	cfg, err := common.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *target != "" {
		cfg.Target = *target
	}
	if *name != "" {
		cfg.Name = *name
	}

	log := common.SetupLogger(*logJSON, *logDebug)

	tlsConf, err := cfg.TLS.ClientTLSConfig()
	if err != nil {
		fmt.Printf("TLS error: %v\n", err)
		os.Exit(1)
	}

	trainer, err := executor.NewTrainer(cfg.Executor, executor.Options(cfg.ExecutorOptions))
	if err != nil {
		fmt.Printf("Executor error: %v\n", err)
		os.Exit(1)
	}

	api := client.NewAPI(cfg.Target, tlsConf, cfg.RetryInterval.Std(), log)
	agent, err := client.NewAgent(client.Config{
		Name:               cfg.Name,
		SaveDir:            cfg.SavePath,
		HeartbeatFrequency: cfg.HeartbeatFrequency.Std(),
		ModelOverwrites:    cfg.ModelOverwrites,
	}, api, trainer, log)
	if err != nil {
		fmt.Printf("Agent error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting participant", "version", buildinfo.Version, "name", cfg.Name, "target", cfg.Target)
	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("participant run failed", "err", err)
		os.Exit(1)
	}
}
