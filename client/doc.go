// Package client implements the participant side of a federated run.
//
// An Agent registers with the coordinator, keeps its session alive with
// heartbeats and then loops: fetch the task configuration and latest
// model, train a checkpoint locally and submit it. The loop ends when
// the coordinator reports the run complete. Backpressure responses are
// retried indefinitely; everything the agent writes lands in its save
// directory as config.latest and checkpoint.latest.
package client
