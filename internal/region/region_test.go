package region

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/colorseason/internal/detector"
	"github.com/dudu/colorseason/internal/dominant"
)

var (
	skinTone  = [3]float64{224, 172, 140}
	hairBrown = [3]float64{60, 40, 30}
	white     = [3]float64{255, 255, 255}
	blue      = [3]float64{0, 0, 255}
	red       = [3]float64{255, 0, 0}
	green     = [3]float64{0, 255, 0}
)

func solid(rows, cols int, c [3]float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(c[0], c[1], c[2], 0), rows, cols, gocv.MatTypeCV8UC3)
}

func paint(img *gocv.Mat, r image.Rectangle, c [3]float64) {
	roi := img.Region(r)
	roi.SetTo(gocv.NewScalar(c[0], c[1], c[2], 0))
	roi.Close()
}

func TestHairRect(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)

	tests := []struct {
		name string
		box  detector.FaceBox
		want image.Rectangle
	}{
		{
			name: "half face width above the box",
			box:  detector.FaceBox{Left: 50, Top: 80, Right: 150, Bottom: 200},
			want: image.Rect(50, 30, 150, 80),
		},
		{
			name: "odd width floors",
			box:  detector.FaceBox{Left: 10, Top: 100, Right: 111, Bottom: 220},
			want: image.Rect(10, 50, 111, 100),
		},
		{
			name: "top clamps at zero",
			box:  detector.FaceBox{Left: 200, Top: 20, Right: 300, Bottom: 140},
			want: image.Rect(200, 0, 300, 20),
		},
		{
			name: "face at top edge leaves nothing",
			box:  detector.FaceBox{Left: 200, Top: 0, Right: 300, Bottom: 140},
			want: image.Rectangle{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HairRect(tt.box, bounds)
			if tt.want.Empty() {
				assert.True(t, got.Empty())
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLipRect(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	lip := []image.Point{{20, 50}, {50, 40}, {80, 50}, {50, 60}}

	assert.Equal(t, image.Rect(15, 35, 85, 65), LipRect(lip, 5, bounds))
	assert.Equal(t, image.Rect(0, 20, 100, 80), LipRect(lip, 20, bounds))
	assert.True(t, LipRect(nil, 5, bounds).Empty())
}

func TestHairRegion(t *testing.T) {
	img := solid(240, 200, white)
	defer img.Close()
	box := detector.FaceBox{Left: 50, Top: 80, Right: 150, Bottom: 200}
	// Hair occupies the left 60 columns of the band; the rest is white background
	paint(&img, image.Rect(50, 30, 110, 80), hairBrown)

	r, err := Hair(img, box, DefaultConfig().Hair)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, image.Rect(50, 30, 150, 80), r.Rect)
	assert.Equal(t, 50, r.Pixels.Rows())
	assert.Equal(t, 100, r.Pixels.Cols())
	assert.Equal(t, 60*50, gocv.CountNonZero(r.Mask), "white background is filtered out")

	e, err := dominant.NewExtractor(dominant.DefaultOptions())
	require.NoError(t, err)
	hex, err := e.Hex(r.Pixels, r.Mask)
	require.NoError(t, err)
	assert.Equal(t, "#3c281e", hex)
}

func TestHairRegionAtTopEdge(t *testing.T) {
	img := solid(100, 100, hairBrown)
	defer img.Close()

	r, err := Hair(img, detector.FaceBox{Left: 10, Top: 0, Right: 60, Bottom: 50}, DefaultConfig().Hair)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Empty())
	assert.True(t, r.Pixels.Empty())
}

func TestSkinRegion(t *testing.T) {
	img := solid(120, 120, blue)
	defer img.Close()
	box := detector.FaceBox{Left: 20, Top: 20, Right: 100, Bottom: 110}
	paint(&img, image.Rect(30, 30, 90, 100), skinTone)

	r, err := Skin(img, box, DefaultConfig().Skin)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, box.Rect(), r.Rect)
	assert.Equal(t, 60*70, gocv.CountNonZero(r.Mask), "blue border is outside the skin band")
}

func TestSkinRegionDoesNotMutateSource(t *testing.T) {
	img := solid(50, 50, skinTone)
	defer img.Close()
	before := img.Clone()
	defer before.Close()

	r, err := Skin(img, detector.FaceBox{Left: 5, Top: 5, Right: 45, Bottom: 45}, DefaultConfig().Skin)
	require.NoError(t, err)
	paint(&r.Pixels, image.Rect(0, 0, 10, 10), red)
	r.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(img, before, &diff)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorRGBToGray)
	assert.Zero(t, gocv.CountNonZero(gray))
}

// notchedLandmarks places a concave outer-lip contour whose top edge dips to
// (50, 52), cutting a triangular notch out of the 20..80 x 40..60 bounding box.
func notchedLandmarks() *detector.LandmarkSet {
	var l detector.LandmarkSet
	contour := []image.Point{
		{20, 50}, {30, 40}, {40, 40}, {50, 52}, {60, 40}, {70, 40},
		{80, 50}, {70, 60}, {60, 60}, {50, 60}, {40, 60}, {30, 60},
	}
	for i, p := range contour {
		l[detector.OuterLipStart+i] = p
	}
	return &l
}

func TestLipRegionExcludesNotch(t *testing.T) {
	img := solid(100, 100, blue)
	defer img.Close()
	paint(&img, image.Rect(20, 40, 81, 61), red)
	// Inside the bounding box, outside the polygon
	notch := image.Rect(47, 40, 54, 45)
	paint(&img, notch, green)

	r, err := Lip(img, notchedLandmarks(), DefaultLipPadding)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, image.Rect(15, 35, 85, 65), r.Rect)

	for y := notch.Min.Y; y < notch.Max.Y; y++ {
		for x := notch.Min.X; x < notch.Max.X; x++ {
			local := image.Pt(x, y).Sub(r.Rect.Min)
			require.Zero(t, r.Mask.GetUCharAt(local.Y, local.X), "notch pixel (%d,%d) is masked in", x, y)
		}
	}
	// A point well inside the contour is included
	inside := image.Pt(30, 50).Sub(r.Rect.Min)
	assert.Equal(t, uint8(255), r.Mask.GetUCharAt(inside.Y, inside.X))

	e, err := dominant.NewExtractor(dominant.DefaultOptions())
	require.NoError(t, err)
	hex, err := e.Hex(r.Pixels, r.Mask)
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", hex, "notch must not contribute")
}

func TestLipRegionClampsToImage(t *testing.T) {
	img := solid(56, 84, red)
	defer img.Close()

	r, err := Lip(img, notchedLandmarks(), 10)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, image.Rect(10, 30, 84, 56), r.Rect)
	assert.Equal(t, r.Rect.Dy(), r.Mask.Rows())
	assert.Equal(t, r.Rect.Dx(), r.Mask.Cols())
}

func TestLipRegionRejectsNegativePadding(t *testing.T) {
	img := solid(10, 10, red)
	defer img.Close()

	_, err := Lip(img, notchedLandmarks(), -1)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	inverted := DefaultConfig()
	inverted.Skin.Lower[0], inverted.Skin.Upper[0] = 30, 10
	assert.Error(t, inverted.Validate())

	hueOverflow := DefaultConfig()
	hueOverflow.Hair.Upper[0] = 200
	assert.Error(t, hueOverflow.Validate())

	negPad := DefaultConfig()
	negPad.LipPadding = -2
	assert.Error(t, negPad.Validate())
}
