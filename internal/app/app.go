// Package app wires the detector, frame source and display into start/stop
// controlled sessions.
package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/session"
)

// ErrModelNotLoaded is returned by Start when the detector failed to load.
var ErrModelNotLoaded = errors.New("model not loaded")

// Config holds the collaborators of the application.
type Config struct {
	// Detector is the loaded model. Nil when loading failed.
	Detector detector.Detector
	// LoadErr is the model load failure, if any. Sessions are refused while set.
	LoadErr error
	Opener  capture.Opener
	Display session.Display
	// Threshold is the initial confidence threshold.
	Threshold float64
}

// App runs at most one session at a time and exposes the start/stop signals
// and the threshold to the control surfaces.
type App struct {
	config   Config
	controls *session.Controls
	log      *zap.SugaredLogger

	mu      sync.RWMutex
	current *session.Session
	done    chan struct{}
	last    *session.Outcome
	closed  bool
}

// New creates a new App. A non-nil LoadErr is reported on the display right away.
func New(cfg Config) *App {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = config.DefaultThreshold
	}
	if cfg.Detector == nil && cfg.LoadErr == nil {
		cfg.LoadErr = ErrModelNotLoaded
	}

	a := &App{
		config:   cfg,
		controls: session.NewControls(threshold),
		log:      logging.Named("app"),
	}

	if cfg.LoadErr != nil {
		a.log.Errorw("model unavailable, sessions disabled", "error", cfg.LoadErr)
		a.reportLoadError()
	}
	return a
}

// Controls returns the shared threshold and stop signal.
func (a *App) Controls() *session.Controls {
	return a.controls
}

// ModelError returns the model load failure, or nil.
func (a *App) ModelError() error {
	return a.config.LoadErr
}

// Start begins a new session in the background. It is a no-op while a session
// is running. With no model loaded it reports the failure and returns
// ErrModelNotLoaded without touching the camera.
func (a *App) Start() error {
	if a.config.LoadErr != nil {
		a.reportLoadError()
		if errors.Is(a.config.LoadErr, ErrModelNotLoaded) {
			return a.config.LoadErr
		}
		return fmt.Errorf("%w: %w", ErrModelNotLoaded, a.config.LoadErr)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.New("app closed")
	}
	// Don't start if already running
	if a.current != nil {
		return nil
	}

	a.controls.ClearStop()
	s := session.New(a.config.Opener, a.config.Detector, a.controls, a.config.Display)
	done := make(chan struct{})
	a.current = s
	a.done = done

	go a.run(s, done)

	a.log.Infow("session requested", "session", s.ID())
	return nil
}

func (a *App) run(s *session.Session, done chan struct{}) {
	started := time.Now()
	out := s.Run()

	a.mu.Lock()
	a.current = nil
	a.last = &out
	a.mu.Unlock()
	close(done)

	a.log.Infow("session finished",
		"session", out.SessionID,
		"reason", out.Reason,
		"frames", out.Frames,
		"duration", time.Since(started).Round(time.Millisecond),
	)
}

// Stop signals the running session to stop after its current iteration.
// The check and the signal happen under the same lock Start takes, so a stop
// aimed at a finished session cannot leak into the next one.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return
	}
	a.controls.RequestStop()
	a.log.Infow("stop requested", "session", a.current.ID())
}

// Running reports whether a session is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current != nil
}

// Wait blocks until the current session, if any, has finished.
func (a *App) Wait() {
	a.mu.RLock()
	done := a.done
	a.mu.RUnlock()

	if done != nil {
		<-done
	}
}

// LastOutcome returns the result of the most recent finished session.
func (a *App) LastOutcome() (session.Outcome, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return session.Outcome{}, false
	}
	return *a.last, true
}

// Close stops any running session, waits for it and closes the detector.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.Stop()
	a.Wait()

	var err error
	if a.config.Detector != nil {
		err = multierr.Append(err, a.config.Detector.Close())
	}
	return err
}

func (a *App) reportLoadError() {
	if a.config.Display == nil {
		return
	}
	a.config.Display.ShowStatus(session.Status{
		State:     session.Idle,
		Level:     session.LevelError,
		Message:   fmt.Sprintf("Could not load model: %v", a.config.LoadErr),
		Threshold: a.controls.Threshold(),
		Time:      time.Now(),
	})
}
