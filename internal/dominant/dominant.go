// Package dominant finds the single most representative color of a pixel region.
package dominant

import (
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

// MinAttempts is the lowest number of k-means restarts accepted
const MinAttempts = 10

// MaxSamples caps the clustered population. Sums of up to 65536 8-bit
// samples are exact in float32, which OpenCV accumulates centroids in.
const MaxSamples = 1 << 16

// Black is returned when no pixel survives the mask
var Black = RGB{}

// RGB is an 8-bit color triple
type RGB struct {
	R, G, B uint8
}

// Hex encodes the color as lowercase "#rrggbb"
func (c RGB) Hex() string {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Hex()
}

// ParseHex decodes "#rrggbb" (or "#rgb") into an RGB triple
func ParseHex(s string) (RGB, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return RGB{}, err
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// Options configures the clustering
type Options struct {
	Attempts      int     // k-means restarts, at least MinAttempts
	MaxIterations int     // per-attempt iteration cap
	Epsilon       float64 // centroid movement at which an attempt stops
}

// DefaultOptions returns the stock clustering settings
func DefaultOptions() Options {
	return Options{
		Attempts:      MinAttempts,
		MaxIterations: 100,
		Epsilon:       1e-4,
	}
}

// Validate checks the clustering settings
func (o Options) Validate() error {
	if o.Attempts < MinAttempts {
		return fmt.Errorf("clustering attempts must be at least %d, got %d", MinAttempts, o.Attempts)
	}
	if o.MaxIterations <= 0 {
		return fmt.Errorf("clustering max iterations must be positive, got %d", o.MaxIterations)
	}
	if o.Epsilon <= 0 {
		return fmt.Errorf("clustering epsilon must be positive, got %v", o.Epsilon)
	}
	return nil
}

// Extractor computes dominant colors with k=1 clustering
type Extractor struct {
	opts Options
}

// NewExtractor creates an extractor; invalid options are rejected
func NewExtractor(opts Options) (*Extractor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{opts: opts}, nil
}

// Color returns the dominant color of an RGB CV_8UC3 region.
// An empty mask Mat means every pixel counts; otherwise only pixels whose
// mask value is non-zero do. With no surviving pixels the result is Black.
func (e *Extractor) Color(pixels, mask gocv.Mat) (RGB, error) {
	samples, err := collect(pixels, mask)
	if err != nil {
		return RGB{}, err
	}
	defer samples.Close()

	if samples.Empty() {
		return Black, nil
	}

	labels := gocv.NewMat()
	defer labels.Close()
	centers := gocv.NewMat()
	defer centers.Close()

	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, e.opts.MaxIterations, e.opts.Epsilon)
	gocv.KMeans(samples, 1, &labels, criteria, e.opts.Attempts, gocv.KMeansPPCenters, &centers)

	if centers.Rows() < 1 || centers.Cols() < 3 {
		return RGB{}, fmt.Errorf("clustering produced %dx%d centers", centers.Rows(), centers.Cols())
	}

	return RGB{
		R: channel(centers.GetFloatAt(0, 0)),
		G: channel(centers.GetFloatAt(0, 1)),
		B: channel(centers.GetFloatAt(0, 2)),
	}, nil
}

// Hex is Color encoded as "#rrggbb"
func (e *Extractor) Hex(pixels, mask gocv.Mat) (string, error) {
	c, err := e.Color(pixels, mask)
	if err != nil {
		return "", err
	}
	return c.Hex(), nil
}

// collect flattens the retained pixels into an N x 3 CV_32F sample matrix.
// The returned Mat is empty when nothing is retained.
func collect(pixels, mask gocv.Mat) (gocv.Mat, error) {
	if pixels.Empty() {
		return gocv.NewMat(), nil
	}
	if pixels.Type() != gocv.MatTypeCV8UC3 {
		return gocv.NewMat(), fmt.Errorf("expected 8-bit 3-channel pixels, got type %v", pixels.Type())
	}
	masked := !mask.Empty()
	if masked {
		if mask.Rows() != pixels.Rows() || mask.Cols() != pixels.Cols() {
			return gocv.NewMat(), fmt.Errorf("mask %dx%d does not match pixels %dx%d",
				mask.Cols(), mask.Rows(), pixels.Cols(), pixels.Rows())
		}
		if mask.Type() != gocv.MatTypeCV8U {
			return gocv.NewMat(), fmt.Errorf("expected 8-bit single-channel mask, got type %v", mask.Type())
		}
	}

	n := pixels.Rows() * pixels.Cols()
	if masked {
		n = gocv.CountNonZero(mask)
	}
	if n == 0 {
		return gocv.NewMat(), nil
	}

	// Large populations are thinned with a fixed stride so results stay reproducible
	m := min(n, MaxSamples)
	samples := gocv.NewMatWithSize(m, 3, gocv.MatTypeCV32F)
	seen, taken := 0, 0
	for row := 0; row < pixels.Rows() && taken < m; row++ {
		for col := 0; col < pixels.Cols() && taken < m; col++ {
			if masked && mask.GetUCharAt(row, col) == 0 {
				continue
			}
			if seen == taken*n/m {
				px := pixels.GetVecbAt(row, col)
				samples.SetFloatAt(taken, 0, float32(px[0]))
				samples.SetFloatAt(taken, 1, float32(px[1]))
				samples.SetFloatAt(taken, 2, float32(px[2]))
				taken++
			}
			seen++
		}
	}
	return samples, nil
}

// channel rounds a centroid component to the nearest 8-bit value
func channel(v float32) uint8 {
	r := math.Round(float64(v))
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}
