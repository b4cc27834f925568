// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sustainable-computing-io/carbon-tracker/config"
	"github.com/sustainable-computing-io/carbon-tracker/internal/server"
	"github.com/sustainable-computing-io/carbon-tracker/internal/service"
)

// Endpoints of the HTTP control surface
const (
	StartPath  = "/_carbon/start"
	StopPath   = "/_carbon/stop"
	StatusPath = "/_carbon/status"
)

// Handler serves the HTTP control surface of a session manager
type Handler struct {
	logger *slog.Logger
	api    server.APIService
	env    config.Env
	local  *Local
}

var (
	_ service.Service     = (*Handler)(nil)
	_ service.Initializer = (*Handler)(nil)
)

// NewHandler creates the control surface for sessions. The shared secret is
// read from env on every request.
func NewHandler(api server.APIService, sessions Sessions, env config.Env, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger: logger.With("service", "carbon-control"),
		api:    api,
		env:    env,
		local:  NewLocal(sessions, TagHTTP),
	}
}

func (h *Handler) Name() string {
	return "carbon-control"
}

func (h *Handler) Init() error {
	if err := h.api.Register(StartPath, "Start", "Start a measurement session (POST)",
		h.guard(http.MethodPost, h.start)); err != nil {
		return err
	}
	if err := h.api.Register(StopPath, "Stop", "Stop the measurement session (POST)",
		h.guard(http.MethodPost, h.stop)); err != nil {
		return err
	}
	return h.api.Register(StatusPath, "Status", "Measurement session status",
		h.guard(http.MethodGet, h.status))
}

// guard rejects other methods and requests without the shared secret
func (h *Handler) guard(method string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			h.writeJSON(w, http.StatusMethodNotAllowed, Reply{"error": "method not allowed"})
			return
		}
		if !h.authorized(r) {
			h.logger.Warn("Rejected unauthorized control request", "path", r.URL.Path, "remote", r.RemoteAddr)
			h.writeJSON(w, http.StatusForbidden, Reply{"error": "unauthorized"})
			return
		}
		next(w, r)
	})
}

func (h *Handler) authorized(r *http.Request) bool {
	token := h.env.ControlToken()
	if token == "" {
		return true
	}
	provided := r.Header.Get(config.TokenHeader)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	req := parseStartRequest(decodeObject(r.Body))
	h.reply(w, func() (Reply, error) { return h.local.Start(r.Context(), req) })
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	req := parseStopRequest(decodeObject(r.Body))
	h.reply(w, func() (Reply, error) { return h.local.Stop(r.Context(), req) })
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	h.reply(w, func() (Reply, error) { return h.local.Status(r.Context()) })
}

func (h *Handler) reply(w http.ResponseWriter, fn func() (Reply, error)) {
	reply, err := fn()
	if err != nil {
		h.logger.Error("Control command failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, Reply{"error": err.Error(), "control": TagHTTP})
		return
	}
	h.writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}
