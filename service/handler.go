package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nims-federated-learning/NIMS-FL/coordinator"
	"github.com/nims-federated-learning/NIMS-FL/metrics"
)

const (
	throttleBacklog        = 64
	throttleBacklogTimeout = time.Minute
)

// Handler adapts the coordinator to HTTP.
type Handler struct {
	coord   *coordinator.Coordinator
	workers int
	log     *slog.Logger
}

// NewHandler creates a handler serving coord with at most workers
// concurrent requests.
func NewHandler(coord *coordinator.Coordinator, workers int, log *slog.Logger) *Handler {
	return &Handler{
		coord:   coord,
		workers: workers,
		log:     log,
	}
}

// RegisterRoutes mounts the coordination endpoints. They share a throttle
// sized to the worker count; requests beyond the backlog get a 429, which
// participants treat like backpressure and retry.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.ThrottleBacklog(h.workers, throttleBacklog, throttleBacklogTimeout))
		r.Post("/authenticate", h.authenticate)
		r.Post("/heartbeat", h.heartbeat)
		r.Post("/model", h.model)
		r.Post("/checkpoint", h.checkpoint)
		r.Post("/close", h.close)
	})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := DecodeMessage[AuthenticateRequest](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	token, err := h.coord.Authenticate(req.Name, remoteIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&AuthenticateResponse{Token: token})
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := DecodeMessage[TokenRequest](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.coord.Heartbeat(req.Token, remoteIP(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) model(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := DecodeMessage[TokenRequest](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	conf, model, err := h.coord.GrantModel(req.Token, remoteIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&ModelResponse{Configuration: conf, Checkpoint: model})
}

func (h *Handler) checkpoint(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := DecodeMessage[CheckpointRequest](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Content) == 0 {
		http.Error(w, "Missing checkpoint content", http.StatusBadRequest)
		return
	}

	if err := h.coord.SubmitCheckpoint(req.Token, remoteIP(r), req.Content); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := DecodeMessage[TokenRequest](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.coord.Close(req.Token, remoteIP(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeError maps coordinator errors onto status codes. Backpressure is
// retryable and gets a 429; authentication failures and the end of the
// run are terminal and get a 403.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrBackpressure):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, coordinator.ErrAuthentication):
		metrics.AuthenticationFailures.Inc()
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, coordinator.ErrRoundsComplete):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		h.log.Error("request failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// remoteIP strips the port from the request's remote address. Behind the
// RealIP middleware the address carries no port and is returned as is.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
