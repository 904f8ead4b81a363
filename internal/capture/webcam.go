package capture

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Settings configures a webcam source.
type Settings struct {
	// Device is a camera index such as "0" or a video file path.
	Device string
	Width  int
	Height int
	FPS    int
}

// DefaultSettings returns the settings for the default webcam.
func DefaultSettings() Settings {
	return Settings{
		Device: "0",
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
	}
}

// DeviceIndex returns the camera index when Device is numeric.
// The second result is false when Device names a file or URL.
func (s Settings) DeviceIndex() (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(s.Device))
	if err != nil {
		return 0, false
	}
	return idx, true
}

// Webcam manages video capture from a camera device or file using GoCV.
type Webcam struct {
	settings Settings
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	released bool
}

// OpenWebcam acquires the device named by settings.
// Failures wrap ErrOpen.
func OpenWebcam(settings Settings) (*Webcam, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)

	if idx, ok := settings.DeviceIndex(); ok {
		vc, err = gocv.OpenVideoCapture(idx)
	} else {
		vc, err = gocv.OpenVideoCapture(settings.Device)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: device %q: %v", ErrOpen, settings.Device, err)
	}

	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %q", ErrOpen, settings.Device)
	}

	if settings.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(settings.Width))
	}
	if settings.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(settings.Height))
	}
	if settings.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(settings.FPS))
	}

	return &Webcam{
		settings: settings,
		capture:  vc,
	}, nil
}

// NewWebcamOpener returns an Opener that opens a fresh Webcam on each call.
func NewWebcamOpener(settings Settings) Opener {
	return func() (Source, error) {
		return OpenWebcam(settings)
	}
}

// Read reads a single frame from the device.
// The caller is responsible for closing the returned Mat.
func (w *Webcam) Read() (*gocv.Mat, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released || w.capture == nil {
		return nil, fmt.Errorf("%w: %w", ErrEndOfStream, ErrReleased)
	}

	mat := gocv.NewMat()
	if ok := w.capture.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("%w: failed to read frame from %q", ErrEndOfStream, w.settings.Device)
	}

	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: captured frame is empty", ErrEndOfStream)
	}

	return &mat, nil
}

// Release closes the device. Subsequent calls return nil.
func (w *Webcam) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released || w.capture == nil {
		w.released = true
		return nil
	}

	err := w.capture.Close()
	w.capture = nil
	w.released = true

	return err
}
