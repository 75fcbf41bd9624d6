// Package cmd provides the CLI commands for NIMS-FL.
//
// # Commands
//
// fl-server: Runs the federated learning coordinator. Admits participants,
// distributes the task configuration and the latest aggregate model, collects
// trained checkpoints, and aggregates them round by round.
//
//	go run ./cmd/fl-server --config=server.yaml
//	go run ./cmd/fl-server --config=server.yaml --log-json --log-debug
//
// fl-client: Runs a federated learning participant. Authenticates with the
// coordinator, then trains and submits one checkpoint per round through the
// configured executor until the run is complete.
//
//	go run ./cmd/fl-client --config=client.yaml
//	go run ./cmd/fl-client --config=client.yaml --name=site_1 --target=localhost:8024
//
// # Configuration
//
// Both commands load a YAML configuration file via the --config flag.
// Command-line flags override config file values.
//
// Example coordinator config:
//
//	listen_addr: "localhost:8024"
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
// Example participant config:
//
//	name: site_0
//	target: "localhost:8024"
//	executor: command
//	executor_options:
//	  command: python
//	  args: ["train.py"]
//	model_overwrites:
//	  epochs: 1
//
// # Transport Security
//
// When the tls section is enabled on both sides, every connection is
// mutually authenticated: the coordinator requires a client certificate
// signed by the shared root CA. Without it both commands fall back to
// plain HTTP and log a warning.
package cmd
