package detector

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// lipOutput builds a model output with points spread on a circle so the lip contour is valid
func lipOutput() []float32 {
	out := make([]float32, NumLandmarks*2)
	for i := 0; i < NumLandmarks; i++ {
		angle := 2 * math.Pi * float64(i%12) / 12
		out[i*2] = float32(0.5 + 0.25*math.Cos(angle))
		out[i*2+1] = float32(0.5 + 0.25*math.Sin(angle))
	}
	return out
}

func TestPostprocess68(t *testing.T) {
	// Crop of side 100 centered at (100, 100) mapped to a 112 input
	scale := float32(112) / 100
	out := lipOutput()
	out[0], out[1] = 0.5, 0.5 // center of crop
	out[2], out[3] = 0, 0     // top-left of crop

	l, err := postprocess68(out, 100, 100, scale, 112, 400, 400)
	require.NoError(t, err)

	assert.Equal(t, image.Pt(100, 100), l[0])
	assert.Equal(t, image.Pt(50, 50), l[1])
}

func TestPostprocess68Clamps(t *testing.T) {
	scale := float32(112) / 100
	out := lipOutput()
	out[0], out[1] = -1, 2

	l, err := postprocess68(out, 20, 20, scale, 112, 60, 60)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(0, 59), l[0])
}

func TestPostprocess68Failures(t *testing.T) {
	scale := float32(1)

	t.Run("short output", func(t *testing.T) {
		_, err := postprocess68(make([]float32, 10), 0, 0, scale, 112, 100, 100)
		assert.True(t, errors.Is(err, ErrLandmarkFailed))
	})

	t.Run("non-finite", func(t *testing.T) {
		out := lipOutput()
		out[7] = float32(math.NaN())
		_, err := postprocess68(out, 50, 50, scale, 112, 100, 100)
		assert.True(t, errors.Is(err, ErrLandmarkFailed))
	})

	t.Run("collapsed lips", func(t *testing.T) {
		out := make([]float32, NumLandmarks*2)
		for i := range out {
			out[i] = 0.5
		}
		_, err := postprocess68(out, 50, 50, scale, 112, 100, 100)
		assert.True(t, errors.Is(err, ErrLandmarkFailed))
	})
}

func TestLandmark68CheckBox(t *testing.T) {
	l := &Landmark68{config: DefaultLandmark68Config("")}
	img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	tests := []struct {
		name string
		box  FaceBox
		ok   bool
	}{
		{"valid", FaceBox{10, 10, 60, 70}, true},
		{"zero area", FaceBox{10, 10, 10, 70}, false},
		{"too small", FaceBox{10, 10, 20, 20}, false},
		{"outside image", FaceBox{50, 50, 150, 150}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.checkBox(img, tt.box)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrLandmarkFailed))
			}
		})
	}
}

func TestParseYuNet(t *testing.T) {
	rows := gocv.NewMatWithSize(2, 15, gocv.MatTypeCV32F)
	defer rows.Close()

	// First face partly outside the frame, second degenerate
	row0 := []float32{-10, 20, 60, 80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0.95}
	row1 := []float32{30, 30, 0, 40, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0.80}
	for c := 0; c < 15; c++ {
		rows.SetFloatAt(0, c, row0[c])
		rows.SetFloatAt(1, c, row1[c])
	}

	faces := parseYuNet(rows, 200, 200)
	require.Len(t, faces, 1)
	assert.Equal(t, FaceBox{Left: 0, Top: 20, Right: 50, Bottom: 100}, faces[0].Box)
	assert.InDelta(t, 0.95, faces[0].Score, 1e-6)
}
