package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/countdown/go/internal/countdown"
	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy        bool            `json:"healthy"`
	StoreConnected bool            `json:"store_connected"`
	NATSConnected  *bool           `json:"nats_connected,omitempty"`
	Viewers        int             `json:"viewers"`
	State          countdown.State `json:"state"`
	Errors         []string        `json:"errors,omitempty"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

type natsProbe interface {
	IsConnected() bool
}

type ReadinessChecker struct {
	store   pinger
	nats    natsProbe // nil when the mirror is disabled
	app     *countdown.App
	viewers func() int
	timeout time.Duration
}

func newReadinessChecker(s *Services) *ReadinessChecker {
	rc := &ReadinessChecker{
		store:   s.Repo,
		app:     s.App,
		viewers: func() int { return s.Hub.Stats().TotalConnections },
		timeout: 2 * time.Second,
	}
	if s.Mirror != nil {
		rc.nats = s.Mirror
	}
	return rc
}

func (h *ReadinessChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		State:   h.app.Snapshot().State,
		Viewers: h.viewers(),
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("store ping failed: %v", err))
	} else {
		status.StoreConnected = true
	}

	// The mirror is optional: a NATS outage degrades it but viewers are unaffected.
	if h.nats != nil {
		connected := h.nats.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	return status
}

func (h *ReadinessChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode readiness response")
	}
}
