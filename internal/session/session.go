// Package session runs one start-to-stop cycle of the capture, infer, annotate
// and display loop.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/annotate"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/logging"
)

// Status messages shown on the control surface.
const (
	MsgStarted      = "Webcam started. Use Stop to exit."
	MsgOpenFailed   = "Cannot open webcam."
	MsgGrabFailed   = "Failed to grab frame."
	MsgStopped      = "Webcam stopped."
	MsgNoGesture    = "Top Gesture: None"
	topGestureFmt   = "Top Gesture: %s (%.2f)"
	inferFailedFmt  = "Inference failed: %v"
	sessionPanicFmt = "Session crashed: %v"
)

// ErrAlreadyRun is returned in the Outcome when Run is called on a used Session.
var ErrAlreadyRun = errors.New("session already run")

// State is the lifecycle position of a Session.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "running":
		*s = Running
	case "stopped":
		*s = Stopped
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}

// Level classifies a status message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Status is one update pushed to the display.
type Status struct {
	SessionID string    `json:"session_id,omitempty"`
	State     State     `json:"state"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	HasTop    bool      `json:"has_top"`
	TopLabel  string    `json:"top_label,omitempty"`
	TopScore  float64   `json:"top_score,omitempty"`
	FPS       float64   `json:"fps"`
	Frames    int       `json:"frames"`
	Threshold float64   `json:"threshold"`
	Time      time.Time `json:"time"`
}

// Display receives annotated frames and status updates.
// ShowFrame must not retain the Mat past the call.
type Display interface {
	ShowFrame(frame *gocv.Mat)
	ShowStatus(status Status)
}

// Reason says why a session ended.
type Reason string

const (
	ReasonOpenFailed     Reason = "open_failed"
	ReasonEndOfStream    Reason = "end_of_stream"
	ReasonStopRequested  Reason = "stop_requested"
	ReasonInferenceError Reason = "inference_error"
	ReasonPanic          Reason = "panic"
)

// Outcome summarizes a finished session.
type Outcome struct {
	SessionID string
	Reason    Reason
	Frames    int
	Err       error
}

// TopGestureMessage formats the top detection line.
func TopGestureMessage(d detector.Detection, ok bool) string {
	if !ok {
		return MsgNoGesture
	}
	return fmt.Sprintf(topGestureFmt, d.Label, d.Score)
}

// Session is a single cycle from Idle to Stopped. It is not reusable:
// a new start builds a new Session.
type Session struct {
	id       string
	open     capture.Opener
	detector detector.Detector
	controls *Controls
	display  Display
	log      *zap.SugaredLogger

	mu      sync.RWMutex
	state   State
	started bool
}

// New creates an Idle session.
func New(open capture.Opener, det detector.Detector, controls *Controls, display Display) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		open:     open,
		detector: det,
		controls: controls,
		display:  display,
		log:      logging.Named("session").With("session", id),
		state:    Idle,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// begin claims the session for a single Run.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyRun
	}
	s.started = true
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Run opens the frame source and loops until a stop request, end of stream or
// inference failure. It blocks for the whole session. The source is released
// exactly once on every exit path. A panic anywhere in the session, the opener
// included, is converted into an error status and Outcome.
func (s *Session) Run() (out Outcome) {
	out.SessionID = s.id
	if err := s.begin(); err != nil {
		out.Err = err
		return out
	}

	var (
		src         capture.Source
		releaseOnce sync.Once
		lp          loop
	)
	release := func() {
		releaseOnce.Do(func() {
			if src == nil {
				return
			}
			if err := src.Release(); err != nil {
				s.log.Warnw("release failed", "error", err)
			}
		})
	}

	defer func() {
		r := recover()
		release()
		if r == nil {
			return
		}
		out.Frames = lp.frames
		s.setState(Stopped)
		s.log.Errorw("session panicked", "panic", r)
		s.emit(LevelError, fmt.Sprintf(sessionPanicFmt, r), lp.frames, lp.fps)
		out.Reason = ReasonPanic
		out.Err = fmt.Errorf("session panic: %v", r)
	}()

	opened, err := s.open()
	if err == nil && opened == nil {
		err = fmt.Errorf("%w: opener returned no source", capture.ErrOpen)
	}
	if err != nil {
		s.setState(Stopped)
		s.log.Errorw("open failed", "error", err)
		s.emit(LevelError, MsgOpenFailed, 0, 0)
		out.Reason = ReasonOpenFailed
		out.Err = err
		return out
	}
	src = opened

	s.setState(Running)
	s.log.Infow("session started")
	s.emit(LevelInfo, MsgStarted, 0, 0)

	for {
		reason, err := s.step(src, &lp)
		out.Frames = lp.frames
		if reason == "" {
			continue
		}

		release()
		s.setState(Stopped)
		out.Reason = reason
		out.Err = err

		switch reason {
		case ReasonEndOfStream:
			s.log.Warnw("frame read failed", "error", err, "frames", lp.frames)
			s.emit(LevelWarning, MsgGrabFailed, lp.frames, lp.fps)
		case ReasonInferenceError:
			s.log.Errorw("inference failed", "error", err, "frames", lp.frames)
			s.emit(LevelError, fmt.Sprintf(inferFailedFmt, err), lp.frames, lp.fps)
		case ReasonStopRequested:
			s.log.Infow("session stopped", "frames", lp.frames)
			s.emit(LevelWarning, MsgStopped, lp.frames, lp.fps)
		}
		return out
	}
}

// loop carries per-session counters between iterations.
type loop struct {
	frames int
	last   time.Time
	fps    float64
}

func (l *loop) tick(now time.Time) {
	if !l.last.IsZero() {
		if dt := now.Sub(l.last).Seconds(); dt > 0 {
			l.fps = 1 / dt
		}
	}
	l.last = now
	l.frames++
}

// step runs one read, infer, annotate and display pass. It returns a non-empty
// Reason when the session must end. Every Mat it allocates is closed before it
// returns, panics included.
func (s *Session) step(src capture.Source, lp *loop) (Reason, error) {
	frame, err := s.source(src)
	if err != nil {
		return ReasonEndOfStream, err
	}
	defer frame.Close()

	threshold := s.controls.Threshold()
	dets, err := s.detector.Infer(frame, threshold)
	if err != nil {
		return ReasonInferenceError, err
	}

	annotated := annotate.Draw(*frame, dets)
	defer annotated.Close()
	top, ok := annotate.TopLabel(dets)

	lp.tick(time.Now())
	s.display.ShowStatus(s.status(LevelInfo, TopGestureMessage(top, ok), top, ok, lp.frames, lp.fps, threshold))
	s.display.ShowFrame(&annotated)

	if s.controls.StopRequested() {
		return ReasonStopRequested, nil
	}
	return "", nil
}

// source reads one frame, treating any read failure as end of stream.
func (s *Session) source(src capture.Source) (*gocv.Mat, error) {
	frame, err := src.Read()
	if err != nil {
		if !errors.Is(err, capture.ErrEndOfStream) {
			err = fmt.Errorf("%w: %w", capture.ErrEndOfStream, err)
		}
		return nil, err
	}
	if frame == nil || frame.Empty() {
		if frame != nil {
			frame.Close()
		}
		return nil, fmt.Errorf("%w: empty frame", capture.ErrEndOfStream)
	}
	return frame, nil
}

func (s *Session) emit(level Level, msg string, frames int, fps float64) {
	s.display.ShowStatus(s.status(level, msg, detector.Detection{}, false, frames, fps, s.controls.Threshold()))
}

func (s *Session) status(level Level, msg string, top detector.Detection, ok bool, frames int, fps, threshold float64) Status {
	st := Status{
		SessionID: s.id,
		State:     s.State(),
		Level:     level,
		Message:   msg,
		HasTop:    ok,
		FPS:       fps,
		Frames:    frames,
		Threshold: threshold,
		Time:      time.Now(),
	}
	if ok {
		st.TopLabel = top.Label
		st.TopScore = top.Score
	}
	return st
}
