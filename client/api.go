package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nims-federated-learning/NIMS-FL/service"
)

// maxTransportAttempts bounds retries of requests that never reached the
// coordinator. Backpressure responses are retried without bound.
const maxTransportAttempts = 3

// ErrUnreachable marks transport failures that exhausted their retries.
var ErrUnreachable = errors.New("coordinator unreachable")

// StatusError is a non-2xx response from the coordinator.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coordinator returned %d: %s", e.Code, e.Message)
}

// API is a typed HTTP client for the coordination endpoints. Calls that
// hit backpressure (429) are retried until the coordinator lets them
// through or the context ends.
type API struct {
	baseURL       string
	httpClient    *http.Client
	retryInterval time.Duration
	log           *slog.Logger
}

// NewAPI creates a client for the coordinator at target (host:port).
// A nil tlsConf means plain HTTP.
func NewAPI(target string, tlsConf *tls.Config, retryInterval time.Duration, log *slog.Logger) *API {
	scheme := "https"
	if tlsConf == nil {
		scheme = "http"
		log.Warn("connection to the coordinator is insecure")
	}

	return &API{
		baseURL: fmt.Sprintf("%s://%s", scheme, target),
		// No client-wide timeout: the final submission of a round blocks
		// on server-side aggregation. Cancellation comes from the context.
		httpClient: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConf},
		},
		retryInterval: retryInterval,
		log:           log,
	}
}

// Authenticate registers name with the coordinator and returns the
// session token.
func (a *API) Authenticate(ctx context.Context, name string) (string, error) {
	var resp service.AuthenticateResponse
	if err := a.post(ctx, "/authenticate", &service.AuthenticateRequest{Name: name}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Heartbeat refreshes the session's liveness timestamp.
func (a *API) Heartbeat(ctx context.Context, token string) error {
	return a.post(ctx, "/heartbeat", &service.TokenRequest{Token: token}, nil)
}

// RequestModel fetches the task configuration and the latest aggregate
// checkpoint, blocking through backpressure until the round is open.
func (a *API) RequestModel(ctx context.Context, token string) (*service.ModelResponse, error) {
	var resp service.ModelResponse
	if err := a.post(ctx, "/model", &service.TokenRequest{Token: token}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendCheckpoint submits a trained checkpoint for the current round.
func (a *API) SendCheckpoint(ctx context.Context, token string, content []byte) error {
	return a.post(ctx, "/checkpoint", &service.CheckpointRequest{Token: token, Content: content}, nil)
}

// Close ends the session.
func (a *API) Close(ctx context.Context, token string) error {
	return a.post(ctx, "/close", &service.TokenRequest{Token: token}, nil)
}

func (a *API) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	attempts := 0
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			attempts++
			if attempts >= maxTransportAttempts || ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrUnreachable, err)
			}
			a.log.Warn("request failed, retrying", "path", path, "err", err)
			if !a.pause(ctx) {
				return ctx.Err()
			}
			continue
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusServiceUnavailable
		if retryable {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			attempts = 0
			if !a.pause(ctx) {
				return ctx.Err()
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
		}

		if out == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
		return nil
	}
}

// pause sleeps one retry interval, reporting false when the context ends
// first.
func (a *API) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(a.retryInterval):
		return true
	}
}
