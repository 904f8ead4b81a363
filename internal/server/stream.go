package server

import (
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval resends the current frame when the session is idle so
// proxies and browsers keep the multipart response open.
const keepAliveInterval = 2 * time.Second

// StreamHandler serves the dashboard's latest annotated frame as MJPEG.
type StreamHandler struct {
	dashboard *Dashboard
}

// NewStreamHandler creates a new StreamHandler for dashboard.
func NewStreamHandler(dashboard *Dashboard) *StreamHandler {
	return &StreamHandler{dashboard: dashboard}
}

// ServeHTTP streams MJPEG frames to the client until it disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	var sent uint64
	for {
		jpeg, seq, next := h.dashboard.Frame()
		if seq != 0 && seq != sent {
			if err := writePart(w, jpeg); err != nil {
				return
			}
			sent = seq
		}

		select {
		case <-r.Context().Done():
			return
		case <-next:
		case <-keepAlive.C:
			sent = 0
		}
	}
}

// writePart writes one multipart JPEG part and flushes it.
func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
