// Package region derives the hair, skin and lip pixel regions of a face and
// the boolean masks that gate which of their pixels count toward a color.
//
// Each derivation is a pure function of the source image and face geometry.
// Regions own their pixel and mask Mats and must be closed by the caller.
package region

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/colorseason/internal/detector"
)

// DefaultLipPadding is the margin added around the outer-lip bounding box
const DefaultLipPadding = 5

// HSVRange is an inclusive OpenCV 8-bit HSV band (H in 0..180, S and V in 0..255)
type HSVRange struct {
	Lower [3]float64
	Upper [3]float64
}

// Validate checks that the band is well formed
func (r HSVRange) Validate() error {
	limits := [3]float64{180, 255, 255}
	for c := 0; c < 3; c++ {
		if r.Lower[c] < 0 || r.Upper[c] > limits[c] {
			return fmt.Errorf("channel %d bounds [%v, %v] outside [0, %v]", c, r.Lower[c], r.Upper[c], limits[c])
		}
		if r.Lower[c] > r.Upper[c] {
			return fmt.Errorf("channel %d lower bound %v above upper bound %v", c, r.Lower[c], r.Upper[c])
		}
	}
	return nil
}

// Config holds the calibration constants for the three regions
type Config struct {
	Hair       HSVRange
	Skin       HSVRange
	LipPadding int
}

// DefaultConfig returns the stock calibration
func DefaultConfig() Config {
	return Config{
		Hair: HSVRange{
			Lower: [3]float64{0, 20, 50},
			Upper: [3]float64{180, 255, 255},
		},
		Skin: HSVRange{
			Lower: [3]float64{0, 20, 70},
			Upper: [3]float64{20, 255, 255},
		},
		LipPadding: DefaultLipPadding,
	}
}

// Validate checks all calibration constants
func (c Config) Validate() error {
	if err := c.Hair.Validate(); err != nil {
		return fmt.Errorf("hair range: %w", err)
	}
	if err := c.Skin.Validate(); err != nil {
		return fmt.Errorf("skin range: %w", err)
	}
	if c.LipPadding < 0 {
		return fmt.Errorf("lip padding must be non-negative, got %d", c.LipPadding)
	}
	return nil
}

// Region is a rectangular crop of the source image plus its gating mask.
// Pixels is RGB CV_8UC3; Mask is CV_8U of the same size, non-zero = included.
// Both are empty Mats when Rect has no area.
type Region struct {
	Rect   image.Rectangle
	Pixels gocv.Mat
	Mask   gocv.Mat
}

// Empty reports whether the region covers no pixels
func (r *Region) Empty() bool {
	return r.Rect.Empty()
}

// Close releases the region's Mats
func (r *Region) Close() error {
	r.Pixels.Close()
	r.Mask.Close()
	return nil
}

// HairRect is the band directly above the face box, half the face width tall,
// spanning the face's columns. It is clipped to bounds.
func HairRect(box detector.FaceBox, bounds image.Rectangle) image.Rectangle {
	height := box.Width() / 2
	top := max(0, box.Top-height)
	return image.Rect(box.Left, top, box.Right, box.Top).Intersect(bounds)
}

// SkinRect is the face box clipped to bounds
func SkinRect(box detector.FaceBox, bounds image.Rectangle) image.Rectangle {
	return box.Rect().Intersect(bounds)
}

// LipRect is the outer-lip bounding box grown by padding on every side, clamped to bounds
func LipRect(lip []image.Point, padding int, bounds image.Rectangle) image.Rectangle {
	if len(lip) == 0 {
		return image.Rectangle{}
	}
	lo, hi := detector.Bounds(lip)
	r := image.Rect(
		max(bounds.Min.X, lo.X-padding),
		max(bounds.Min.Y, lo.Y-padding),
		min(bounds.Max.X, hi.X+padding),
		min(bounds.Max.Y, hi.Y+padding),
	)
	if r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y {
		return image.Rectangle{}
	}
	return r
}

// Hair derives the hair-candidate region and its HSV threshold mask
func Hair(img gocv.Mat, box detector.FaceBox, band HSVRange) (Region, error) {
	return thresholded(img, HairRect(box, bounds(img)), band)
}

// Skin derives the skin-candidate region and its HSV threshold mask
func Skin(img gocv.Mat, box detector.FaceBox, band HSVRange) (Region, error) {
	return thresholded(img, SkinRect(box, bounds(img)), band)
}

// Lip derives the padded outer-lip region; the mask is the filled 12-point contour
func Lip(img gocv.Mat, landmarks *detector.LandmarkSet, padding int) (Region, error) {
	if padding < 0 {
		return Region{}, fmt.Errorf("lip padding must be non-negative, got %d", padding)
	}

	lip := landmarks.OuterLip()
	rect := LipRect(lip, padding, bounds(img))
	if rect.Empty() {
		return emptyRegion(), nil
	}

	pixels, err := crop(img, rect)
	if err != nil {
		return Region{}, err
	}

	// Rasterize the contour in region-local coordinates
	local := make([]image.Point, len(lip))
	for i, p := range lip {
		local[i] = p.Sub(rect.Min)
	}

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rect.Dy(), rect.Dx(), gocv.MatTypeCV8U)
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{local})
	defer pv.Close()
	gocv.FillPoly(&mask, pv, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	return Region{Rect: rect, Pixels: pixels, Mask: mask}, nil
}

func thresholded(img gocv.Mat, rect image.Rectangle, band HSVRange) (Region, error) {
	if err := band.Validate(); err != nil {
		return Region{}, err
	}
	if rect.Empty() {
		return emptyRegion(), nil
	}

	pixels, err := crop(img, rect)
	if err != nil {
		return Region{}, err
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(pixels, &hsv, gocv.ColorRGBToHSV)

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(band.Lower[0], band.Lower[1], band.Lower[2], 0),
		gocv.NewScalar(band.Upper[0], band.Upper[1], band.Upper[2], 0),
		&mask)

	return Region{Rect: rect, Pixels: pixels, Mask: mask}, nil
}

// crop copies rect out of img so the region never aliases the caller's buffer
func crop(img gocv.Mat, rect image.Rectangle) (gocv.Mat, error) {
	if img.Type() != gocv.MatTypeCV8UC3 {
		return gocv.NewMat(), fmt.Errorf("expected 8-bit 3-channel image, got type %v", img.Type())
	}
	if !rect.In(bounds(img)) {
		return gocv.NewMat(), fmt.Errorf("region %v outside image %v", rect, bounds(img))
	}
	view := img.Region(rect)
	defer view.Close()
	return view.Clone(), nil
}

func emptyRegion() Region {
	return Region{Pixels: gocv.NewMat(), Mask: gocv.NewMat()}
}

func bounds(img gocv.Mat) image.Rectangle {
	return image.Rect(0, 0, img.Cols(), img.Rows())
}
