package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YOLODetector runs a YOLOv8-style ONNX export through the OpenCV DNN module.
type YOLODetector struct {
	net       gocv.Net
	config    Config
	inputSize image.Point
	mu        sync.Mutex
}

// Load reads the model artifact and prepares it for inference.
// Every failure is returned as a *LoadError.
func Load(cfg Config) (*YOLODetector, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultConfig().InputSize
	}
	if cfg.NMSThreshold <= 0 {
		cfg.NMSThreshold = DefaultConfig().NMSThreshold
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, &LoadError{Path: cfg.ModelPath, Err: err}
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, &LoadError{Path: cfg.ModelPath, Err: errors.New("unsupported or corrupt model artifact")}
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputSize, cfg.InputSize),
	}, nil
}

// Infer runs one forward pass over frame and returns the detections scoring at least threshold.
func (d *YOLODetector) Infer(frame *gocv.Mat, threshold float64) (DetectionSet, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(*frame, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, errors.New("model produced no output")
	}

	dets, err := d.parseOutput(output, frame.Cols(), frame.Rows(), threshold)
	if err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}

	return FilterByScore(dets, threshold), nil
}

// parseOutput decodes a YOLOv8 head: [1, 4+classes, anchors], with each
// anchor holding cx, cy, w, h followed by per-class scores.
// Some exports are transposed to [1, anchors, 4+classes]; both are accepted.
func (d *YOLODetector) parseOutput(output gocv.Mat, imgW, imgH int, threshold float64) (DetectionSet, error) {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected output rank %d", len(sizes))
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, err
	}

	channels, anchors := sizes[1], sizes[2]
	transposed := false
	if channels > anchors {
		channels, anchors = anchors, channels
		transposed = true
	}
	if channels <= 4 {
		return nil, fmt.Errorf("output has %d channels, need more than 4", channels)
	}

	at := func(anchor, channel int) float32 {
		if transposed {
			return data[anchor*channels+channel]
		}
		return data[channel*anchors+anchor]
	}

	scaleX := float32(imgW) / float32(d.inputSize.X)
	scaleY := float32(imgH) / float32(d.inputSize.Y)
	bounds := image.Rect(0, 0, imgW, imgH)

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)

	for i := 0; i < anchors; i++ {
		maxScore := float32(0)
		maxClass := 0
		for c := 4; c < channels; c++ {
			if s := at(i, c); s > maxScore {
				maxScore = s
				maxClass = c - 4
			}
		}

		if maxScore < float32(threshold) {
			continue
		}

		cx, cy := at(i, 0), at(i, 1)
		w, h := at(i, 2), at(i, 3)

		box := image.Rect(
			int((cx-w/2)*scaleX),
			int((cy-h/2)*scaleY),
			int((cx+w/2)*scaleX),
			int((cy+h/2)*scaleY),
		).Intersect(bounds)

		boxes = append(boxes, box)
		scores = append(scores, maxScore)
		classes = append(classes, maxClass)
	}

	if len(boxes) == 0 {
		return DetectionSet{}, nil
	}

	// Candidates are already thresholded, so NMS only removes overlaps.
	indices := gocv.NMSBoxes(boxes, scores, 0, float32(d.config.NMSThreshold))

	dets := make(DetectionSet, 0, len(indices))
	for _, idx := range indices {
		dets = append(dets, Detection{
			Box:     boxes[idx],
			ClassID: classes[idx],
			Label:   LabelFor(d.config.Labels, classes[idx]),
			Score:   float64(scores[idx]),
		})
	}

	return dets, nil
}

// Labels returns the class names the detector was configured with.
func (d *YOLODetector) Labels() []string {
	return d.config.Labels
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
