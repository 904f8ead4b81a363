package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/logging"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsHandler pushes every status update to websocket clients as JSON.
type EventsHandler struct {
	dashboard *Dashboard
}

// NewEventsHandler creates a new EventsHandler for dashboard.
func NewEventsHandler(dashboard *Dashboard) *EventsHandler {
	return &EventsHandler{dashboard: dashboard}
}

// ServeHTTP handles WebSocket upgrade requests. The latest status is sent
// first, then each new one as it is shown.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.Named("events")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.dashboard.Subscribe()
	defer cancel()

	// Reads detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if st, ok := h.dashboard.Status(); ok {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(st); err != nil {
			return
		}
	}

	for {
		select {
		case <-gone:
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(st); err != nil {
				log.Debugw("websocket write failed", "error", err)
				return
			}
		}
	}
}
