// Package annotate draws detections onto frames and picks the top detection.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
)

// Drawing parameters
const (
	BoxThickness  = 2
	FontScale     = 0.6
	FontThickness = 2
	labelPadding  = 4
)

// palette cycles per class ID so each sign keeps a stable color.
var palette = []color.RGBA{
	{R: 6, G: 214, B: 160, A: 255},
	{R: 17, G: 138, B: 178, A: 255},
	{R: 255, G: 209, B: 102, A: 255},
	{R: 239, G: 71, B: 111, A: 255},
	{R: 131, G: 56, B: 236, A: 255},
	{R: 251, G: 86, B: 7, A: 255},
}

var labelText = color.RGBA{R: 0, G: 0, B: 0, A: 255}

// ColorFor returns the box color used for a class.
func ColorFor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// Caption formats a detection as "label 0.87".
func Caption(d detector.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Score)
}

// Draw returns a copy of frame with every detection's box and caption drawn on it.
// The input frame is never modified. The caller owns the returned Mat.
func Draw(frame gocv.Mat, dets detector.DetectionSet) gocv.Mat {
	out := frame.Clone()
	if out.Empty() {
		return out
	}

	for _, d := range dets {
		c := ColorFor(d.ClassID)
		gocv.Rectangle(&out, d.Box, c, BoxThickness)

		caption := Caption(d)
		size := gocv.GetTextSize(caption, gocv.FontHersheySimplex, FontScale, FontThickness)

		// Caption sits above the box, or inside it when the box touches the top edge.
		top := d.Box.Min.Y - size.Y - 2*labelPadding
		if top < 0 {
			top = d.Box.Min.Y
		}
		bg := image.Rect(d.Box.Min.X, top, d.Box.Min.X+size.X+2*labelPadding, top+size.Y+2*labelPadding)
		gocv.Rectangle(&out, bg, c, -1)
		gocv.PutText(&out, caption, image.Pt(bg.Min.X+labelPadding, bg.Max.Y-labelPadding),
			gocv.FontHersheySimplex, FontScale, labelText, FontThickness)
	}

	return out
}

// TopLabel returns the detection with the highest score.
// On exact ties the first maximum in iteration order wins.
// The second result is false for an empty set.
func TopLabel(dets detector.DetectionSet) (detector.Detection, bool) {
	if len(dets) == 0 {
		return detector.Detection{}, false
	}

	best := 0
	for i := 1; i < len(dets); i++ {
		if dets[i].Score > dets[best].Score {
			best = i
		}
	}
	return dets[best], true
}
