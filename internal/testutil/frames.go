// Package testutil builds synthetic frames for tests that need real Mats.
package testutil

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Standard synthetic frame size.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// SolidFrame creates a BGR frame filled with c.
func SolidFrame(c color.RGBA) *gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		FrameHeight, FrameWidth, gocv.MatTypeCV8UC3,
	)
	return &mat
}

// Sequence creates n frames with distinct gray levels so they can be told apart.
func Sequence(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		level := uint8((i*40 + 20) % 256)
		frames = append(frames, SolidFrame(color.RGBA{R: level, G: level, B: level, A: 255}))
	}
	return frames
}

// CloseAll closes every frame in frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
