// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sustainable-computing-io/carbon-tracker/internal/service"
)

// HealthProbe serves liveness and readiness endpoints aggregated over services
type HealthProbe struct {
	logger    *slog.Logger
	apiServer APIService
	services  []service.Service
}

var (
	_ service.Service     = (*HealthProbe)(nil)
	_ service.Initializer = (*HealthProbe)(nil)
)

// ServiceHealth represents the health status of a single service
type ServiceHealth struct {
	Name   string `json:"name"`
	Status bool   `json:"status"`
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status   string          `json:"status"` // "ok" or "unhealthy"
	Services []ServiceHealth `json:"services"`
}

// NewHealthProbe creates a new HealthProbe service
func NewHealthProbe(apiServer APIService, services []service.Service, logger *slog.Logger) *HealthProbe {
	return &HealthProbe{
		logger:    logger.With("service", "health-probe"),
		apiServer: apiServer,
		services:  services,
	}
}

func (h *HealthProbe) Name() string {
	return "health-probe"
}

func (h *HealthProbe) Init() error {
	if err := h.apiServer.Register("/probe/livez", "Liveness Probe",
		"Returns 200 if all services are alive", http.HandlerFunc(h.handleLiveness)); err != nil {
		return err
	}
	return h.apiServer.Register("/probe/readyz", "Readiness Probe",
		"Returns 200 if all services are ready", http.HandlerFunc(h.handleReadiness))
}

func (h *HealthProbe) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, func(svc service.Service) (bool, bool) {
		c, ok := svc.(service.LiveChecker)
		if !ok {
			return false, false
		}
		return c.IsLive(), true
	})
}

func (h *HealthProbe) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, func(svc service.Service) (bool, bool) {
		c, ok := svc.(service.ReadyChecker)
		if !ok {
			return false, false
		}
		return c.IsReady(), true
	})
}

// respond runs check on every service; check returns false as its second
// value for services it does not apply to
func (h *HealthProbe) respond(w http.ResponseWriter, check func(service.Service) (bool, bool)) {
	status := HealthStatus{Status: "ok", Services: []ServiceHealth{}}
	code := http.StatusOK

	for _, svc := range h.services {
		healthy, applies := check(svc)
		if !applies {
			continue
		}
		status.Services = append(status.Services, ServiceHealth{Name: svc.Name(), Status: healthy})
		if !healthy {
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}
