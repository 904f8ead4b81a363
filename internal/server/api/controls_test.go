package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayusman/mudra/internal/session"
)

type fakeController struct {
	controls *session.Controls
	running  bool
	modelErr error
	startErr error
	starts   int
	stops    int
}

func newFakeController() *fakeController {
	return &fakeController{controls: session.NewControls(0.35)}
}

func (c *fakeController) Start() error {
	c.starts++
	if c.startErr != nil {
		return c.startErr
	}
	c.running = true
	return nil
}

func (c *fakeController) Stop()                       { c.stops++ }
func (c *fakeController) Running() bool               { return c.running }
func (c *fakeController) Controls() *session.Controls { return c.controls }
func (c *fakeController) ModelError() error           { return c.modelErr }

type fakeStatus struct {
	status session.Status
	ok     bool
}

func (f fakeStatus) Status() (session.Status, bool) { return f.status, f.ok }

func TestSessionHandler_Start(t *testing.T) {
	ctrl := newFakeController()
	h := NewSessionHandler(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/start", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if ctrl.starts != 1 {
		t.Errorf("starts = %d, want 1", ctrl.starts)
	}

	var resp sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !resp.Running {
		t.Error("expected running = true")
	}
}

func TestSessionHandler_StartWithoutModel(t *testing.T) {
	ctrl := newFakeController()
	ctrl.modelErr = errors.New("missing best.onnx")
	ctrl.startErr = errors.New("model not loaded: missing best.onnx")
	h := NewSessionHandler(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/start", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var resp errorResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error != "model not loaded: missing best.onnx" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestSessionHandler_StartFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.startErr = errors.New("app closed")
	h := NewSessionHandler(ctrl)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/start", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestSessionHandler_Stop(t *testing.T) {
	t.Run("stop while running", func(t *testing.T) {
		ctrl := newFakeController()
		ctrl.running = true
		h := NewSessionHandler(ctrl)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stop", nil))

		if rec.Code != http.StatusAccepted {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
		}
		if ctrl.stops != 1 {
			t.Errorf("stops = %d, want 1", ctrl.stops)
		}
	})

	t.Run("stop while idle", func(t *testing.T) {
		ctrl := newFakeController()
		h := NewSessionHandler(ctrl)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stop", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if ctrl.stops != 0 {
			t.Errorf("stops = %d, want 0", ctrl.stops)
		}
	})
}

func TestSessionHandler_MethodNotAllowed(t *testing.T) {
	h := NewSessionHandler(newFakeController())

	for _, path := range []string{"/api/start", "/api/stop"} {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s %s: status = %d, want %d", method, path, rec.Code, http.StatusMethodNotAllowed)
			}
		}
	}
}

func TestThresholdHandler_Get(t *testing.T) {
	h := NewThresholdHandler(newFakeController())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threshold", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp thresholdResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	want := thresholdResponse{Value: 0.35, Min: 0.1, Max: 1.0, Step: 0.05}
	if resp != want {
		t.Errorf("response = %+v, want %+v", resp, want)
	}
}

func TestThresholdHandler_Put(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		want     float64
	}{
		{name: "valid value", body: `{"value": 0.5}`, wantCode: http.StatusOK, want: 0.5},
		{name: "snaps to step", body: `{"value": 0.62}`, wantCode: http.StatusOK, want: 0.6},
		{name: "clamps low", body: `{"value": 0}`, wantCode: http.StatusOK, want: 0.1},
		{name: "clamps high", body: `{"value": 3}`, wantCode: http.StatusOK, want: 1.0},
		{name: "missing value", body: `{}`, wantCode: http.StatusBadRequest, want: 0.35},
		{name: "invalid JSON", body: `{`, wantCode: http.StatusBadRequest, want: 0.35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			h := NewThresholdHandler(ctrl)

			req := httptest.NewRequest(http.MethodPut, "/api/threshold", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := ctrl.controls.Threshold(); got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("threshold = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusHandler(t *testing.T) {
	t.Run("reports model error and latest status", func(t *testing.T) {
		ctrl := newFakeController()
		ctrl.modelErr = errors.New("missing best.onnx")
		src := fakeStatus{ok: true, status: session.Status{Level: session.LevelError, Message: "Could not load model: missing best.onnx"}}
		h := NewStatusHandler(ctrl, src)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}

		var resp statusResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if resp.ModelLoaded {
			t.Error("expected model_loaded = false")
		}
		if resp.ModelError != "missing best.onnx" {
			t.Errorf("model_error = %q", resp.ModelError)
		}
		if resp.Status == nil || resp.Status.Message != "Could not load model: missing best.onnx" {
			t.Errorf("status = %+v", resp.Status)
		}
	})

	t.Run("omits status before first update", func(t *testing.T) {
		h := NewStatusHandler(newFakeController(), fakeStatus{})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

		var resp statusResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Status != nil {
			t.Errorf("expected no status, got %+v", resp.Status)
		}
		if !resp.ModelLoaded {
			t.Error("expected model_loaded = true")
		}
	})

	t.Run("only allows GET", func(t *testing.T) {
		h := NewStatusHandler(newFakeController(), nil)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
		}
	})
}
