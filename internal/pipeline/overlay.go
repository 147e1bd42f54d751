package pipeline

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/colorseason/internal/detector"
	"github.com/dudu/colorseason/internal/region"
)

var (
	faceColor  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	hairColor  = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	lipColor   = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	pointColor = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// Render draws the face box, hair band, lip box and lip points onto a BGR copy
// of the RGB image. The caller closes the returned Mat.
func Render(img gocv.Mat, box detector.FaceBox, landmarks *detector.LandmarkSet, lipPadding int) gocv.Mat {
	out := gocv.NewMat()
	gocv.CvtColor(img, &out, gocv.ColorRGBToBGR)

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())

	drawLabeled(&out, box.Rect(), "Face", faceColor)

	if hair := region.HairRect(box, bounds); !hair.Empty() {
		drawLabeled(&out, hair, "Hair", hairColor)
	}

	lip := landmarks.OuterLip()
	if lipRect := region.LipRect(lip, lipPadding, bounds); !lipRect.Empty() {
		drawLabeled(&out, lipRect, "Lips", lipColor)
	}
	for _, pt := range lip {
		gocv.Circle(&out, pt, 2, pointColor, -1)
	}

	return out
}

func drawLabeled(img *gocv.Mat, rect image.Rectangle, label string, c color.RGBA) {
	gocv.Rectangle(img, rect, c, 2)

	// Keep the label inside the image when the box touches the top edge
	origin := image.Pt(rect.Min.X, rect.Min.Y-6)
	if origin.Y < 12 {
		origin.Y = rect.Min.Y + 16
	}
	gocv.PutText(img, label, origin, gocv.FontHersheySimplex, 0.5, c, 1)
}
