// Package capture provides frame sources backed by GoCV (OpenCV).
package capture

import (
	"errors"

	"gocv.io/x/gocv"
)

var (
	// ErrOpen is returned when a frame source cannot be acquired.
	ErrOpen = errors.New("cannot open webcam")

	// ErrEndOfStream is returned by Read when no further frame can be produced.
	// Callers stop reading and release the source.
	ErrEndOfStream = errors.New("end of stream")

	// ErrReleased is wrapped together with ErrEndOfStream when reading a released source.
	ErrReleased = errors.New("source released")
)

// Source produces raw BGR frames on demand.
type Source interface {
	// Read blocks until a frame is available. Any device failure is reported
	// as ErrEndOfStream. The caller owns and must close the returned Mat.
	Read() (*gocv.Mat, error)

	// Release frees the underlying device. It is safe to call more than once.
	Release() error
}

// Opener acquires a new Source. Each session calls it once.
type Opener func() (Source, error)
