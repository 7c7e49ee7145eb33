package stabilize

import "fmt"

// BBox is an axis-aligned bounding box in center+size form. Units are
// whatever the upstream model emits (normalised [0,1] or pixels); the
// engine never converts, it only requires consistency within a frame.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area. Zero or negative dimensions yield 0.
func (b BBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// IoU computes Intersection-over-Union between two boxes.
//
// Properties: symmetric, bounded [0,1], IoU(a,a)=1 for non-degenerate a,
// and 0 when the boxes are disjoint or either box has zero area.
func IoU(a, b BBox) float64 {
	aMinX, aMaxX := a.X-a.Width/2, a.X+a.Width/2
	aMinY, aMaxY := a.Y-a.Height/2, a.Y+a.Height/2
	bMinX, bMaxX := b.X-b.Width/2, b.X+b.Width/2
	bMinY, bMaxY := b.Y-b.Height/2, b.Y+b.Height/2

	interMinX := max(aMinX, bMinX)
	interMinY := max(aMinY, bMinY)
	interMaxX := min(aMaxX, bMaxX)
	interMaxY := min(aMaxY, bMaxY)

	if interMaxX < interMinX || interMaxY < interMinY {
		return 0
	}
	interArea := (interMaxX - interMinX) * (interMaxY - interMinY)

	union := a.Area() + b.Area() - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// Detection is a single raw detection from the upstream model. It carries
// no identity; identity is assigned by the stabilizer via tracks.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	ClassID    *int    `json:"class_id,omitempty"`
}

// Box returns the detection's bounding box.
func (d Detection) Box() BBox {
	return BBox{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height}
}

// Validate checks the fields required by the engine. A failure here is
// recoverable: the caller skips the detection and continues the frame.
func (d Detection) Validate() error {
	if d.Class == "" {
		return &InvalidDetectionError{Reason: "missing class label"}
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return &InvalidDetectionError{Reason: fmt.Sprintf("confidence %.3f outside [0,1]", d.Confidence)}
	}
	if d.Width <= 0 || d.Height <= 0 {
		return &InvalidDetectionError{Reason: fmt.Sprintf("degenerate bounding box %gx%g", d.Width, d.Height)}
	}
	return nil
}
