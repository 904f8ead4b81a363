// Package server provides the HTTP control surface for the mudra dashboard.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/server/api"
)

//go:embed web
var webFS embed.FS

// Config holds the server configuration.
type Config struct {
	// StaticDir overrides the embedded page when set.
	StaticDir string
	// Controller receives start/stop and threshold changes. Control routes
	// are only registered when set.
	Controller api.Controller
	// Dashboard backs the status, stream and events routes.
	Dashboard *Dashboard
}

// Server represents the HTTP server for the mudra dashboard.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time

	mu     sync.Mutex
	http   *http.Server
	cancel context.CancelFunc
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Controller != nil {
		sessionHandler := api.NewSessionHandler(s.config.Controller)
		s.mux.Handle("/api/start", sessionHandler)
		s.mux.Handle("/api/stop", sessionHandler)
		s.mux.Handle("/api/threshold", api.NewThresholdHandler(s.config.Controller))

		var source api.StatusSource
		if s.config.Dashboard != nil {
			source = s.config.Dashboard
		}
		s.mux.Handle("/api/status", api.NewStatusHandler(s.config.Controller, source))
	}

	if s.config.Dashboard != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Dashboard))
		s.mux.Handle("/api/events", NewEventsHandler(s.config.Dashboard))
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
		return
	}

	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		logging.Named("server").Errorw("embedded web assets unavailable", "error", err)
		return
	}
	s.mux.Handle("/", http.FileServer(http.FS(sub)))
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns nil
// after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	// Cancelled on Shutdown so open streams end.
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.http = srv
	s.cancel = cancel
	s.mu.Unlock()

	logging.Named("server").Infow("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel := s.http, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()
	return srv.Shutdown(ctx)
}
