// Package coordinator implements synchronous federated-learning round
// coordination: a fixed population of training participants is admitted
// through a one-shot registration window, and the run then alternates
// between handing the current model out and collecting one checkpoint per
// participant per round.
//
// # Round Lifecycle
//
// A run consists of a configured number of rounds, counted from 1. Every
// round goes through the same cycle:
//
//  1. Each participant requests the model. The first successful grant of
//     the run permanently closes the registration window.
//  2. Each participant trains locally and submits a checkpoint. Uploads
//     are stored under deterministic per-round filenames, so a retried
//     upload overwrites its predecessor instead of duplicating it.
//  3. When the last missing checkpoint arrives, the round barrier is
//     reached: all files of the round are aggregated into a single model
//     and the next round opens.
//
// The barrier spans every registered participant, dead or alive. A
// participant that stops responding mid-round stalls the run until it
// either submits or disconnects through Close; there is no automatic
// eviction.
//
// # Registration Window
//
// Registration is only possible before the first grant. The window stays
// open while fewer than the minimum number of participants are alive, and
// once the minimum is met it lingers until either the maximum is reached
// or no newcomer has arrived for the configured wait period. Requesting a
// model while the window is open fails with ErrBackpressure, telling the
// caller to retry.
//
// # Participant State
//
// Each participant moves through three states per round: idle (nothing
// requested), requested (model granted, training assumed in progress) and
// submitted (checkpoint received). Granting is a test-and-set under the
// round lock, so a participant can hold at most one grant per round no
// matter how often it retries.
//
// # Liveness
//
// Participants prove liveness through periodic heartbeats. A participant
// whose last heartbeat is older than the timeout fails token validation
// on every operation and stops counting towards the registration window,
// but it remains registered and part of the barrier until it closes its
// session.
package coordinator
