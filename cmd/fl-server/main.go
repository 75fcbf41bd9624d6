// Command fl-server runs the federated learning coordinator.
//
// The coordinator admits participants while the registration window is
// open, hands each one the task configuration together with the latest
// aggregate model, collects one trained checkpoint per participant and
// round, and merges the checkpoints into the next model. All checkpoint
// files land in the configured save path.
//
// # Configuration File
//
// Create a YAML file with the run settings:
//
//	listen_addr: "localhost:8024"
//	metrics_addr: "localhost:9090"
//	task_configuration_file: "task.json"
//	rounds: 10
//	minimum_participants: 2
//	maximum_participants: 100
//	registration_wait: 10s
//	heartbeat_timeout: 5m
//	aggregator: mean
//	tls:
//	  enabled: true
//	  certificate: data/certificates/server.crt
//	  private_key: data/certificates/server.key
//	  root_ca: data/certificates/rootCA.pem
//
// # Usage
//
//	go run ./cmd/fl-server --config=server.yaml
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nims-federated-learning/NIMS-FL/aggregate"
	"github.com/nims-federated-learning/NIMS-FL/api/httpserver"
	"github.com/nims-federated-learning/NIMS-FL/cmd/common"
	buildinfo "github.com/nims-federated-learning/NIMS-FL/common"
	"github.com/nims-federated-learning/NIMS-FL/coordinator"
	"github.com/nims-federated-learning/NIMS-FL/service"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		logJSON    = flag.Bool("log-json", false, "Log in JSON format")
		logDebug   = flag.Bool("log-debug", false, "Enable debug logging")
	)
	flag.Parse()

	if *configPath == "" {
		fmt.Println("Error: --config is required")
		os.Exit(1)
	}

	cfg, err := common.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := common.SetupLogger(*logJSON, *logDebug)

	tlsConf, err := cfg.TLS.ServerTLSConfig()
	if err != nil {
		fmt.Printf("TLS error: %v\n", err)
		os.Exit(1)
	}

	agg, err := aggregate.New(cfg.Aggregator, aggregate.Options(cfg.AggregatorOptions))
	if err != nil {
		fmt.Printf("Aggregator error: %v\n", err)
		os.Exit(1)
	}

	registry := coordinator.NewRegistry(cfg.HeartbeatTimeout.Std())
	gate := coordinator.NewGate(coordinator.GatePolicy{
		MinParticipants:  cfg.MinParticipants,
		MaxParticipants:  cfg.MaxParticipants,
		RegistrationWait: cfg.RegistrationWait.Std(),
		Blacklist:        cfg.Blacklist,
		Whitelist:        cfg.Whitelist,
		UseWhitelist:     cfg.UseWhitelist,
	}, registry, log)

	coord, err := coordinator.New(coordinator.Config{
		Rounds:         cfg.Rounds,
		TaskConfigFile: cfg.TaskConfigFile,
		SaveDir:        cfg.SavePath,
		StartPoint:     cfg.StartPoint,
	}, registry, gate, agg, log)
	if err != nil {
		fmt.Printf("Coordinator error: %v\n", err)
		os.Exit(1)
	}

	workers := cfg.Workers
	if cfg.MinParticipants > workers {
		workers = cfg.MinParticipants
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		TLSConfig:                tlsConf,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              30 * time.Second,
		// The final submission of a round blocks on aggregation, so
		// responses are not write-capped.
		WriteTimeout: 0,
	}, service.NewHandler(coord, workers, log))
	if err != nil {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}

	log.Info("starting coordination run",
		"version", buildinfo.Version,
		"rounds", cfg.Rounds,
		"minParticipants", cfg.MinParticipants,
		"maxParticipants", cfg.MaxParticipants,
		"aggregator", cfg.Aggregator,
	)
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	srv.Shutdown()
}
