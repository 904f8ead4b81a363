package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It returns preset detections, filtered by the requested threshold.
type MockDetector struct {
	mu         sync.Mutex
	dets       DetectionSet
	err        error
	calls      int
	thresholds []float64
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the detections that Infer filters and returns.
func (m *MockDetector) SetDetections(dets DetectionSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dets = dets
}

// SetError sets the error that will be returned by Infer.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Infer returns the preset detections at or above threshold, or the preset error.
func (m *MockDetector) Infer(frame *gocv.Mat, threshold float64) (DetectionSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.thresholds = append(m.thresholds, threshold)

	if m.err != nil {
		return nil, m.err
	}
	return FilterByScore(m.dets, threshold), nil
}

// Calls returns how many times Infer ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Thresholds returns the thresholds Infer was called with, in order.
func (m *MockDetector) Thresholds() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.thresholds...)
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// SampleDetections returns a preset set of sign detections with distinct scores.
func SampleDetections() DetectionSet {
	return DetectionSet{
		{Box: image.Rect(40, 60, 200, 260), ClassID: 0, Label: "hello", Score: 0.42},
		{Box: image.Rect(300, 80, 460, 300), ClassID: 1, Label: "thanks", Score: 0.91},
		{Box: image.Rect(120, 250, 260, 420), ClassID: 2, Label: "yes", Score: 0.35},
		{Box: image.Rect(480, 200, 620, 380), ClassID: 3, Label: "no", Score: 0.12},
	}
}
