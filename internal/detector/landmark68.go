package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/colorseason/internal/inference"
)

// Landmark68Config holds landmark regressor parameters
type Landmark68Config struct {
	ModelPath   string
	InputSize   int     // square model input, e.g. 112
	CropExpand  float32 // crop side = max(face w, h) * CropExpand
	InputMean   float32
	InputStd    float32
	MinCropSize int // faces smaller than this on either side are rejected
}

// DefaultLandmark68Config returns settings for a PFLD-style 68-point model
func DefaultLandmark68Config(modelPath string) Landmark68Config {
	return Landmark68Config{
		ModelPath:   modelPath,
		InputSize:   112,
		CropExpand:  1.2,
		InputMean:   0,
		InputStd:    255,
		MinCropSize: 16,
	}
}

// Landmark68 regresses the 68-point iBUG layout from a face crop.
// Model output is 136 values, (x, y) pairs normalized to [0, 1] over the crop.
type Landmark68 struct {
	session *inference.Session
	config  Landmark68Config
}

// NewLandmark68 creates a new 68-point landmark detector
func NewLandmark68(config Landmark68Config) (*Landmark68, error) {
	if config.InputSize <= 0 {
		return nil, fmt.Errorf("invalid landmark input size %d", config.InputSize)
	}
	if config.InputStd == 0 {
		return nil, fmt.Errorf("landmark input std must be non-zero")
	}
	if config.CropExpand <= 0 {
		config.CropExpand = 1
	}

	session, err := inference.NewSessionAuto(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create landmark session: %w", err)
	}

	return &Landmark68{session: session, config: config}, nil
}

// Locate extracts 68 landmarks for a detected face in an RGB image
func (l *Landmark68) Locate(img gocv.Mat, box FaceBox) (LandmarkSet, error) {
	if err := l.checkBox(img, box); err != nil {
		return LandmarkSet{}, err
	}

	size := l.config.InputSize
	centerX := float32(box.Left+box.Right) / 2
	centerY := float32(box.Top+box.Bottom) / 2
	maxDim := float32(max(box.Width(), box.Height()))
	scale := float32(size) / (maxDim * l.config.CropExpand)

	M := cropTransform(centerX, centerY, scale, size)
	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(img, &aligned, M, image.Pt(size, size))
	M.Close()

	floatMat := gocv.NewMat()
	defer floatMat.Close()
	aligned.ConvertTo(&floatMat, gocv.MatTypeCV32FC3)

	// Apply normalization: (x - mean) / std
	std := float64(l.config.InputStd)
	gocv.AddWeighted(floatMat, 1.0/std, floatMat, 0, -float64(l.config.InputMean)/std, &floatMat)

	// Convert HWC to NCHW blob
	blob := gocv.BlobFromImage(floatMat, 1.0, image.Pt(size, size),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(size), int64(size)),
		bytesToFloat32(blob.ToBytes()),
	)
	if err != nil {
		return LandmarkSet{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// (1, 136) = 68 landmarks * 2 coords
	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, NumLandmarks * 2})
	if err != nil {
		return LandmarkSet{}, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := l.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return LandmarkSet{}, fmt.Errorf("%w: inference failed: %v", ErrLandmarkFailed, err)
	}

	return postprocess68(outputTensor.GetData(), centerX, centerY, scale, size, img.Cols(), img.Rows())
}

func (l *Landmark68) checkBox(img gocv.Mat, box FaceBox) error {
	if img.Empty() {
		return fmt.Errorf("%w: empty image", ErrLandmarkFailed)
	}
	if box.Empty() {
		return fmt.Errorf("%w: face box %+v has zero area", ErrLandmarkFailed, box)
	}
	if box != box.Clamp(img.Cols(), img.Rows()) {
		return fmt.Errorf("%w: face box %+v outside %dx%d image", ErrLandmarkFailed, box, img.Cols(), img.Rows())
	}
	if min(box.Width(), box.Height()) < l.config.MinCropSize {
		return fmt.Errorf("%w: face box %dx%d below minimum %d", ErrLandmarkFailed, box.Width(), box.Height(), l.config.MinCropSize)
	}
	return nil
}

// cropTransform maps a square crop centered on (centerX, centerY) to a size x size image
func cropTransform(centerX, centerY, scale float32, size int) gocv.Mat {
	M := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)

	M.SetDoubleAt(0, 0, float64(scale))
	M.SetDoubleAt(0, 1, 0)
	M.SetDoubleAt(0, 2, float64(size)/2-float64(centerX*scale))
	M.SetDoubleAt(1, 0, 0)
	M.SetDoubleAt(1, 1, float64(scale))
	M.SetDoubleAt(1, 2, float64(size)/2-float64(centerY*scale))

	return M
}

// postprocess68 transforms normalized crop coordinates back to image pixels
func postprocess68(output []float32, centerX, centerY, scale float32, size, width, height int) (LandmarkSet, error) {
	var landmarks LandmarkSet

	if len(output) < NumLandmarks*2 {
		return landmarks, fmt.Errorf("%w: model produced %d values, want %d", ErrLandmarkFailed, len(output), NumLandmarks*2)
	}

	half := float32(size) / 2
	for i := 0; i < NumLandmarks; i++ {
		nx, ny := output[i*2], output[i*2+1]
		if !finite(nx) || !finite(ny) {
			return LandmarkSet{}, fmt.Errorf("%w: non-finite output at point %d", ErrLandmarkFailed, i)
		}

		x := (nx*float32(size)-half)/scale + centerX
		y := (ny*float32(size)-half)/scale + centerY

		landmarks[i] = image.Pt(
			clampInt(int(math.Round(float64(x))), 0, width-1),
			clampInt(int(math.Round(float64(y))), 0, height-1),
		)
	}

	if PolygonArea(landmarks.OuterLip()) == 0 {
		return LandmarkSet{}, fmt.Errorf("%w: outer lip contour collapsed", ErrLandmarkFailed)
	}

	return landmarks, nil
}

// Close releases detector resources
func (l *Landmark68) Close() error {
	return l.session.Destroy()
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
