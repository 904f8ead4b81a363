package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back pre-recorded frames for testing.
// Once the frames run out it reports ErrEndOfStream unless looping.
type MockSource struct {
	frames   []*gocv.Mat
	index    int
	loop     bool
	mu       sync.Mutex
	released bool
	reads    int
	releases int
}

// NewMockSource creates a MockSource over frames. The frames stay owned by the caller.
func NewMockSource(frames []*gocv.Mat, loop bool) *MockSource {
	return &MockSource{
		frames: frames,
		loop:   loop,
	}
}

// Read returns a clone of the next frame so the original isn't modified.
func (s *MockSource) Read() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, fmt.Errorf("%w: %w", ErrEndOfStream, ErrReleased)
	}

	if s.index >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return nil, fmt.Errorf("%w: no more frames", ErrEndOfStream)
		}
		s.index = 0
	}

	frame := s.frames[s.index].Clone()
	s.index++
	s.reads++

	return &frame, nil
}

// Release marks the source released. Only the first call counts as a release.
func (s *MockSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.released {
		s.releases++
	}
	s.released = true
	return nil
}

// Reads returns the number of frames handed out.
func (s *MockSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Releases returns how many times the source was actually released.
func (s *MockSource) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// Released reports whether Release has been called.
func (s *MockSource) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// MockOpener records how many times a source was requested.
type MockOpener struct {
	mu     sync.Mutex
	source Source
	err    error
	calls  int
}

// NewMockOpener returns an opener that hands out source.
func NewMockOpener(source Source) *MockOpener {
	return &MockOpener{source: source}
}

// NewFailingOpener returns an opener that always fails with ErrOpen.
func NewFailingOpener() *MockOpener {
	return &MockOpener{err: fmt.Errorf("%w: %w", ErrOpen, errors.New("device unavailable"))}
}

// Open implements Opener.
func (o *MockOpener) Open() (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return o.source, nil
}

// SetSource replaces the source handed out by subsequent Open calls.
func (o *MockOpener) SetSource(source Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.source = source
}

// Calls returns how many times Open was invoked.
func (o *MockOpener) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}
