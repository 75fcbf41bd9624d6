package service

import (
	"encoding/json"
	"io"
)

// AuthenticateRequest asks for admission to the run. The caller's address
// is taken from the connection, not the body.
type AuthenticateRequest struct {
	Name string `json:"name"`
}

// AuthenticateResponse carries the session token used on every other call.
type AuthenticateResponse struct {
	Token string `json:"token"`
}

// TokenRequest identifies the caller on heartbeat, model and close calls.
type TokenRequest struct {
	Token string `json:"token"`
}

// ModelResponse hands out the task configuration and, once a round has
// been aggregated, the latest aggregate checkpoint.
type ModelResponse struct {
	Configuration []byte `json:"configuration"`
	Checkpoint    []byte `json:"checkpoint,omitempty"`
}

// CheckpointRequest submits a trained checkpoint for the current round.
type CheckpointRequest struct {
	Token   string `json:"token"`
	Content []byte `json:"content"`
}

// DecodeMessage parses a JSON message from reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}
