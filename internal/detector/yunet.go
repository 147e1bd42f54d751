package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNet wraps OpenCV's FaceDetectorYN.
// The underlying detector is stateful (input size), so Detect is serialized.
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex
}

// NewYuNet loads a YuNet ONNX model
func NewYuNet(modelPath string, confThreshold, nmsThreshold float32, topK int) (*YuNet, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("failed to load YuNet model: %w", err)
	}

	det := gocv.NewFaceDetectorYN(modelPath, "", image.Pt(320, 320))
	det.SetScoreThreshold(confThreshold)
	det.SetNMSThreshold(nmsThreshold)
	det.SetTopK(topK)

	return &YuNet{detector: det}, nil
}

// Detect finds faces in an RGB image, in the detector's row order.
func (y *YuNet) Detect(img gocv.Mat) ([]Face, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	// YuNet expects BGR input
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(img, &bgr, gocv.ColorRGBToBGR)

	y.mu.Lock()
	defer y.mu.Unlock()

	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	facesMat := gocv.NewMat()
	defer facesMat.Close()
	y.detector.Detect(bgr, &facesMat)

	return parseYuNet(facesMat, img.Cols(), img.Rows()), nil
}

// parseYuNet decodes rows of [x, y, w, h, 5 landmark pairs, score]
func parseYuNet(facesMat gocv.Mat, width, height int) []Face {
	if facesMat.Empty() || facesMat.Rows() == 0 {
		return nil
	}

	faces := make([]Face, 0, facesMat.Rows())
	for i := 0; i < facesMat.Rows(); i++ {
		x := facesMat.GetFloatAt(i, 0)
		y := facesMat.GetFloatAt(i, 1)
		w := facesMat.GetFloatAt(i, 2)
		h := facesMat.GetFloatAt(i, 3)
		score := facesMat.GetFloatAt(i, 14)

		box := BoundingBox{X1: x, Y1: y, X2: x + w, Y2: y + h}.FaceBox(width, height)
		if box.Empty() {
			continue
		}
		faces = append(faces, Face{Box: box, Score: score})
	}
	return faces
}

// Close releases detector resources
func (y *YuNet) Close() error {
	y.detector.Close()
	return nil
}
