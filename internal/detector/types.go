package detector

import (
	"errors"
	"image"
	"math"
)

// ErrLandmarkFailed is returned when landmarks cannot be resolved for a face
var ErrLandmarkFailed = errors.New("landmark extraction failed")

// BoundingBox is a raw float detection box before it is snapped to pixels
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// FaceBox snaps the box to integer pixel coordinates clamped to a width x height image
func (b BoundingBox) FaceBox(width, height int) FaceBox {
	return FaceBox{
		Left:   int(math.Round(float64(b.X1))),
		Top:    int(math.Round(float64(b.Y1))),
		Right:  int(math.Round(float64(b.X2))),
		Bottom: int(math.Round(float64(b.Y2))),
	}.Clamp(width, height)
}

// FaceBox is an axis-aligned face rectangle in image pixel coordinates.
// Right and Bottom are exclusive.
type FaceBox struct {
	Left, Top, Right, Bottom int
}

// Width returns box width
func (f FaceBox) Width() int {
	return f.Right - f.Left
}

// Height returns box height
func (f FaceBox) Height() int {
	return f.Bottom - f.Top
}

// Area returns box area, zero for degenerate boxes
func (f FaceBox) Area() int {
	if f.Empty() {
		return 0
	}
	return f.Width() * f.Height()
}

// Empty reports whether the box has no area
func (f FaceBox) Empty() bool {
	return f.Right <= f.Left || f.Bottom <= f.Top
}

// Rect returns the box as an image.Rectangle
func (f FaceBox) Rect() image.Rectangle {
	return image.Rect(f.Left, f.Top, f.Right, f.Bottom)
}

// Clamp restricts the box to [0,width) x [0,height)
func (f FaceBox) Clamp(width, height int) FaceBox {
	return FaceBox{
		Left:   clampInt(f.Left, 0, width),
		Top:    clampInt(f.Top, 0, height),
		Right:  clampInt(f.Right, 0, width),
		Bottom: clampInt(f.Bottom, 0, height),
	}
}

// Face represents a detected face
type Face struct {
	Box   FaceBox
	Score float32
}

// Number of points in the iBUG 300-W landmark layout
const NumLandmarks = 68

// Outer lip contour occupies indices [OuterLipStart, OuterLipEnd)
const (
	OuterLipStart = 48
	OuterLipEnd   = 60
)

// LandmarkSet represents 68 facial landmark points (iBUG 300-W layout)
type LandmarkSet [NumLandmarks]image.Point

// OuterLip returns the 12 outer-lip contour points in contour order
func (l *LandmarkSet) OuterLip() []image.Point {
	points := make([]image.Point, 0, OuterLipEnd-OuterLipStart)
	for i := OuterLipStart; i < OuterLipEnd; i++ {
		points = append(points, l[i])
	}
	return points
}

// Bounds returns the tight bounding rectangle of the given points.
// Max is inclusive of the extreme point coordinates.
func Bounds(points []image.Point) (min, max image.Point) {
	if len(points) == 0 {
		return image.Point{}, image.Point{}
	}
	min, max = points[0], points[0]
	for _, p := range points[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
	}
	return min, max
}

// PolygonArea returns the absolute shoelace area of a closed polygon
func PolygonArea(points []image.Point) float64 {
	if len(points) < 3 {
		return 0
	}
	var sum int
	for i := range points {
		j := (i + 1) % len(points)
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return math.Abs(float64(sum)) / 2
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
