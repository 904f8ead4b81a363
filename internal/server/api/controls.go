// Package api provides the HTTP control handlers for the mudra dashboard.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/session"
)

// Controller is the session runner driven by the control endpoints.
type Controller interface {
	Start() error
	Stop()
	Running() bool
	Controls() *session.Controls
	ModelError() error
}

// StatusSource provides the most recent status pushed to the display.
type StatusSource interface {
	Status() (session.Status, bool)
}

// Request and response types

type thresholdRequest struct {
	Value *float64 `json:"value"`
}

type thresholdResponse struct {
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step"`
}

type sessionResponse struct {
	Running bool   `json:"running"`
	Message string `json:"message,omitempty"`
}

type statusResponse struct {
	Running     bool            `json:"running"`
	ModelLoaded bool            `json:"model_loaded"`
	ModelError  string          `json:"model_error,omitempty"`
	Threshold   float64         `json:"threshold"`
	Status      *session.Status `json:"status,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// SessionHandler handles the start and stop signals.
type SessionHandler struct {
	ctrl Controller
}

// NewSessionHandler creates a new SessionHandler for ctrl.
func NewSessionHandler(ctrl Controller) *SessionHandler {
	return &SessionHandler{ctrl: ctrl}
}

// ServeHTTP routes POST /api/start and POST /api/stop.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/") {
	case "start":
		h.start(w)
	case "stop":
		h.stop(w)
	default:
		http.NotFound(w, r)
	}
}

func (h *SessionHandler) start(w http.ResponseWriter) {
	if err := h.ctrl.Start(); err != nil {
		if h.ctrl.ModelError() != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, sessionResponse{Running: true})
}

func (h *SessionHandler) stop(w http.ResponseWriter) {
	if !h.ctrl.Running() {
		writeJSON(w, http.StatusOK, sessionResponse{Running: false, Message: "not running"})
		return
	}
	h.ctrl.Stop()
	writeJSON(w, http.StatusAccepted, sessionResponse{Running: true, Message: "stop requested"})
}

// ThresholdHandler reads and updates the confidence threshold.
type ThresholdHandler struct {
	ctrl Controller
}

// NewThresholdHandler creates a new ThresholdHandler for ctrl.
func NewThresholdHandler(ctrl Controller) *ThresholdHandler {
	return &ThresholdHandler{ctrl: ctrl}
}

// ServeHTTP handles GET and PUT /api/threshold.
func (h *ThresholdHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.response(h.ctrl.Controls().Threshold()))
	case http.MethodPut:
		var req thresholdRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Value == nil {
			writeError(w, http.StatusBadRequest, "Value is required")
			return
		}
		writeJSON(w, http.StatusOK, h.response(h.ctrl.Controls().SetThreshold(*req.Value)))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ThresholdHandler) response(v float64) thresholdResponse {
	return thresholdResponse{
		Value: v,
		Min:   config.MinThreshold,
		Max:   config.MaxThreshold,
		Step:  config.ThresholdStep,
	}
}

// StatusHandler reports the session and model state with the latest status.
type StatusHandler struct {
	ctrl   Controller
	source StatusSource
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(ctrl Controller, source StatusSource) *StatusHandler {
	return &StatusHandler{ctrl: ctrl, source: source}
}

// ServeHTTP handles GET /api/status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Running:     h.ctrl.Running(),
		ModelLoaded: h.ctrl.ModelError() == nil,
		Threshold:   h.ctrl.Controls().Threshold(),
	}
	if err := h.ctrl.ModelError(); err != nil {
		resp.ModelError = err.Error()
	}
	if h.source != nil {
		if st, ok := h.source.Status(); ok {
			resp.Status = &st
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
