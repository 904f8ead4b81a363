// Package detector provides object detection interfaces and types for sign gesture recognition.
package detector

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Detection is one predicted object instance in a frame.
type Detection struct {
	Box     image.Rectangle `json:"box"` // pixel coordinates in the source frame
	ClassID int             `json:"class_id"`
	Label   string          `json:"label"`
	Score   float64         `json:"score"` // confidence in [0, 1]
}

// DetectionSet holds every detection produced for a single frame, in model order.
type DetectionSet []Detection

// Detector defines the interface for detection implementations.
type Detector interface {
	// Infer analyzes a frame and returns the detections whose score is at
	// least threshold. Returns an empty set if nothing is detected.
	Infer(frame *gocv.Mat, threshold float64) (DetectionSet, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for the YOLO detector.
type Config struct {
	// ModelPath is the ONNX export of the trained model.
	ModelPath string

	// Labels maps class IDs to names. Missing entries fall back to "class N".
	Labels []string

	// InputSize is the square network input resolution (default: 640).
	InputSize int

	// NMSThreshold is the IoU above which overlapping boxes are suppressed (default: 0.45).
	NMSThreshold float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelPath:    "models/best.onnx",
		InputSize:    640,
		NMSThreshold: 0.45,
	}
}

// LoadError reports a model that could not be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// FilterByScore keeps detections whose score is at least threshold.
// A detection exactly at the threshold is kept. Order is preserved.
// Scores come out of the model as float32, so the comparison is made at
// that precision: a model score of 0.35 passes a 0.35 threshold.
func FilterByScore(dets DetectionSet, threshold float64) DetectionSet {
	out := make(DetectionSet, 0, len(dets))
	for _, d := range dets {
		if AtLeast(d.Score, threshold) {
			out = append(out, d)
		}
	}
	return out
}

// AtLeast reports whether score meets threshold at model precision.
func AtLeast(score, threshold float64) bool {
	return float32(score) >= float32(threshold)
}

// LabelFor returns the class name for id.
func LabelFor(labels []string, id int) string {
	if id >= 0 && id < len(labels) && labels[id] != "" {
		return labels[id]
	}
	return fmt.Sprintf("class %d", id)
}
